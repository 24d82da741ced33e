package structures

// DisplayRateRequest is published by a receiver whenever it changes its vsync rate.
type DisplayRateRequest struct {
	Receiver string `json:"receiver" msgpack:"receiver"`
	Count    int32  `json:"count" msgpack:"count"`
}
