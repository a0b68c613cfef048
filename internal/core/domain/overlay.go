package domain

// OverlayPhase is the lifecycle phase of an info window.
type OverlayPhase string

const (
	OverlayClosed  OverlayPhase = "closed"
	OverlayOpening OverlayPhase = "opening"
	OverlayOpen    OverlayPhase = "open"
	OverlayClosing OverlayPhase = "closing"
)

// Content is what an overlay displays: Markup, Sections or NativeContent.
type Content interface {
	isContent()
}

// Markup is raw HTML shown as is.
type Markup string

// Sections is rendered into a fixed header/body/footer layout.
type Sections struct {
	Header string `json:"header,omitempty"`
	Body   string `json:"body,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// NativeContent is handed to the host map untouched.
type NativeContent struct {
	Value any
}

func (Markup) isContent()        {}
func (Sections) isContent()      {}
func (NativeContent) isContent() {}

// LatLng is the {lat, lng} position shape accepted by overlays.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OverlayState is a read-only view of an overlay controller.
type OverlayState struct {
	IsOpen      bool         `json:"is_open"`
	Phase       OverlayPhase `json:"phase"`
	Position    *GeoPoint    `json:"position,omitempty"`
	Content     Content      `json:"-"`
	IsPanelMode bool         `json:"is_panel_mode"`
}
