package service

import (
	"context"
	"fmt"
	"strings"

	"medsmart-go/internal/config"
	"medsmart-go/internal/model"
	"medsmart-go/pkg/llm"
)

// Retriever 抽象了检索索引，Answer 与 Chat 两条路径共用。
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]model.RetrievedChunk, error)
}

// roleInstructionFormat 是按角色收窄回答范围的系统规则。
// 角色在提问时刻从数据库读取，而不是信任客户端传入的值。
const roleInstructionFormat = `You are a hospital assistant.
User role: %s

Rules:
- If Patient: do NOT reveal private medical records of others
- If Staff: you may answer using medical records
- Be accurate and concise`

// buildRoleInstruction 生成角色限定的系统规则文本。
func buildRoleInstruction(role string) string {
	return fmt.Sprintf(roleInstructionFormat, role)
}

// buildContextText 将检索结果拼成带来源标注的上下文文本。
func buildContextText(results []model.RetrievedChunk) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		label := r.Chunk.Metadata.Source
		if label == "" {
			label = "unknown"
		}
		if r.Chunk.Metadata.Page != nil {
			label = fmt.Sprintf("%s, p.%d", label, *r.Chunk.Metadata.Page+1)
		}
		b.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, label, r.Chunk.PageContent))
	}
	return b.String()
}

// buildSystemMessage 将角色规则与检索上下文组装为 system 消息。
// 上下文用配置的包裹符框起来，没有检索结果时放入占位文本。
func buildSystemMessage(role, contextText string) string {
	refStart := config.Conf.LLM.Prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := config.Conf.LLM.Prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	sys.WriteString(buildRoleInstruction(role))
	sys.WriteString("\n\n")
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := config.Conf.LLM.Prompt.NoResultText
		if noRes == "" {
			noRes = "（本轮无检索结果）"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

// composeMessages 按 system → 历史 → 当前提问的顺序组装 LLM 消息。
func composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userInput})
	return msgs
}

// buildGenerationParams 从配置读取可选生成参数，全部缺省时返回 nil。
func buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if config.Conf.LLM.Generation.Temperature != 0 {
		t := config.Conf.LLM.Generation.Temperature
		gp.Temperature = &t
	}
	if config.Conf.LLM.Generation.TopP != 0 {
		p := config.Conf.LLM.Generation.TopP
		gp.TopP = &p
	}
	if config.Conf.LLM.Generation.MaxTokens != 0 {
		m := config.Conf.LLM.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
