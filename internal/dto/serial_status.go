package dto

// SerialStatus is returned by the serial control endpoints.
type SerialStatus struct {
	State           string `json:"state"`
	Port            string `json:"port"`
	FramesProcessed uint64 `json:"frames_processed"`
	FramesFailed    uint64 `json:"frames_failed"`
	FramesDropped   uint64 `json:"frames_dropped"`
	BytesReceived   uint64 `json:"bytes_received"`
	Subscribers     int    `json:"subscribers"`
	Published       uint64 `json:"published"`
	PublishFailed   uint64 `json:"publish_failed"`
	Message         string `json:"message,omitempty"`
}
