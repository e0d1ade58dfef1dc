// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestTask represents the data structure for a document ingestion job.
// ObjectName 指向 MinIO 中已上传的原始文件。
type IngestTask struct {
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	UploadedBy string `json:"uploaded_by"`
}
