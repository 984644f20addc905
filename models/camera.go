package models

// CameraStatus is the reachability of a camera as shown on its tile.
type CameraStatus string

const (
	// CameraOnline means the camera has a live stream.
	CameraOnline CameraStatus = "online"
	// CameraOffline means the camera could not be played.
	CameraOffline CameraStatus = "offline"
)

// Camera is one NVR channel as listed by the backend.
type Camera struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Location  string       `json:"location" yaml:"location"`
	NVR       string       `json:"nvr" yaml:"nvr"`
	NVRID     string       `json:"nvrId" yaml:"nvr_id"`
	Channel   int          `json:"channel" yaml:"channel"`
	Status    CameraStatus `json:"status" yaml:"status"`
	StreamURL string       `json:"streamUrl,omitempty" yaml:"stream_url"`
	Thumbnail string       `json:"thumbnail,omitempty" yaml:"thumbnail"`
}
