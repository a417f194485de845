package streaming

import (
	"encoding/json"

	"github.com/carbonlab/mapviz/pkg/core"
)

// Message type constants of the renderer protocol. Commands flow from the
// controller to the renderer; ack and scene_loaded flow back.
const (
	TypeCreateScene  = "create_scene"
	TypeSetStyle     = "set_style"
	TypeSetTilt      = "set_tilt"
	TypeAddLayer     = "add_layer"
	TypeRemoveLayer  = "remove_layer"
	TypeDestroyScene = "destroy_scene"

	TypeAck         = "ack"
	TypeSceneLoaded = "scene_loaded"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound is any message the renderer sends back.
type Inbound struct {
	Type    string       `json:"type"`              // "ack" or "scene_loaded"
	For     string       `json:"for,omitempty"`     // the message type being acknowledged
	SceneID core.SceneID `json:"sceneId,omitempty"` // scene the message refers to
	Error   string       `json:"error,omitempty"`   // set when the renderer rejected the command
}

// Viewport is the initial camera of a scene.
type Viewport struct {
	Center [2]float64 `json:"center"`
	Zoom   float64    `json:"zoom"`
}

// CreateScenePayload asks the renderer to mount a new scene.
type CreateScenePayload struct {
	SceneID   core.SceneID `json:"sceneId"`
	Surface   string       `json:"surface"`
	BaseStyle string       `json:"baseStyle"`
	Tilt      float64      `json:"tilt"`
	Viewport  Viewport     `json:"viewport"`
}

// SetStylePayload changes the base style of a scene in place.
type SetStylePayload struct {
	SceneID core.SceneID `json:"sceneId"`
	Style   string       `json:"style"`
}

// SetTiltPayload changes the viewing angle of a scene.
type SetTiltPayload struct {
	SceneID core.SceneID `json:"sceneId"`
	Tilt    float64      `json:"tilt"`
}

// AddLayerPayload attaches a layer under a controller assigned id.
type AddLayerPayload struct {
	SceneID core.SceneID   `json:"sceneId"`
	LayerID core.LayerID   `json:"layerId"`
	Spec    core.LayerSpec `json:"spec"`
}

// RemoveLayerPayload detaches a layer.
type RemoveLayerPayload struct {
	SceneID core.SceneID `json:"sceneId"`
	LayerID core.LayerID `json:"layerId"`
}

// DestroyScenePayload releases a scene.
type DestroyScenePayload struct {
	SceneID core.SceneID `json:"sceneId"`
}
