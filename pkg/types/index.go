package types

import "time"

// MetricCosine is the only similarity metric the store records today
const MetricCosine = "cosine"

// IndexMetadata is the authoritative descriptor of one named index
type IndexMetadata struct {
	Name          string    `json:"name"`
	Dimension     int       `json:"dimension"`
	Metric        string    `json:"metric"`
	ChunkCount    int       `json:"chunkCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	StorageRoot   string    `json:"storageRoot"`
	FormatVersion string    `json:"formatVersion,omitempty"`
	BatchCount    int       `json:"batchCount"`
	BatchSize     int       `json:"batchSize,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Model         string    `json:"model,omitempty"`
}
