package osrm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samirrijal/mapcore/internal/adapters/osrm"
	"github.com/samirrijal/mapcore/internal/core/domain"
)

const okBody = `{
  "code": "Ok",
  "routes": [
    {
      "distance": 1300.4,
      "duration": 905,
      "geometry": {"type": "LineString", "coordinates": [[37.6208, 55.7539], [37.6190, 55.7570], [37.6186, 55.7602]]},
      "legs": [{"steps": [
        {"name": "Красная площадь", "distance": 400, "duration": 300,
         "geometry": {"coordinates": [[37.6208, 55.7539], [37.6190, 55.7570]]},
         "maneuver": {"type": "depart", "bearing_after": 350}},
        {"name": "Театральный проезд", "distance": 900.4, "duration": 605,
         "geometry": {"coordinates": [[37.6190, 55.7570], [37.6186, 55.7602]]},
         "maneuver": {"type": "turn", "modifier": "left", "bearing_after": 270}},
        {"name": "", "distance": 0, "duration": 0,
         "geometry": {"coordinates": [[37.6186, 55.7602]]},
         "maneuver": {"type": "arrive", "instruction": "Вы на месте"}}
      ]}]
    },
    {
      "distance": 1800,
      "duration": 1300,
      "geometry": {"coordinates": [[37.6208, 55.7539], [37.6186, 55.7602]]},
      "legs": [{"steps": []}]
    }
  ]
}`

var (
	redSquare = domain.RoutePoint{Coordinates: domain.LngLat{37.6208, 55.7539}}
	bolshoi   = domain.RoutePoint{Coordinates: domain.LngLat{37.6186, 55.7602}}
	tverskaya = domain.RoutePoint{Coordinates: domain.LngLat{37.61, 55.76}}
)

func newRouter(t *testing.T, handler http.HandlerFunc) *osrm.Router {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return osrm.New(osrm.Config{BaseURL: srv.URL, Timeout: time.Second})
}

func TestCalculateRoute_RequestAndMapping(t *testing.T) {
	r := newRouter(t, func(w http.ResponseWriter, req *http.Request) {
		wantPath := "/route/v1/foot/37.6208,55.7539;37.61,55.76;37.6186,55.7602"
		if req.URL.Path != wantPath {
			t.Errorf("expected path %s, got %s", wantPath, req.URL.Path)
		}
		q := req.URL.Query()
		for k, want := range map[string]string{"geometries": "geojson", "overview": "full", "steps": "true", "alternatives": "2"} {
			if got := q.Get(k); got != want {
				t.Errorf("param %s: expected %q, got %q", k, want, got)
			}
		}
		w.Write([]byte(okBody))
	})

	res, err := r.CalculateRoute(context.Background(), redSquare, bolshoi, []domain.RoutePoint{tverskaya}, domain.RouteOptions{
		Profile:         domain.ProfileWalking,
		Alternatives:    true,
		MaxAlternatives: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(res.Routes))
	}
	if len(res.Waypoints) != 3 {
		t.Errorf("expected 3 waypoints, got %d", len(res.Waypoints))
	}

	primary := res.Routes[0]
	if primary.IsAlternative || !res.Routes[1].IsAlternative {
		t.Error("only the second route should be an alternative")
	}
	if primary.Summary != "1.3 км, 15 мин" {
		t.Errorf("unexpected summary %q", primary.Summary)
	}
	if len(primary.Coordinates) != 3 || len(primary.Steps) != 3 {
		t.Fatalf("unexpected geometry/steps %d/%d", len(primary.Coordinates), len(primary.Steps))
	}

	depart, turn, arrive := primary.Steps[0], primary.Steps[1], primary.Steps[2]
	if depart.Instruction != "Начните движение" || depart.Direction != "север" || depart.RoadName != "Красная площадь" {
		t.Errorf("unexpected depart step %+v", depart)
	}
	if turn.Instruction != "Поверните налево" || turn.Direction != "запад" || turn.Maneuver.Modifier != "left" {
		t.Errorf("unexpected turn step %+v", turn)
	}
	if arrive.Instruction != "Вы на месте" || arrive.Direction != "" {
		t.Errorf("unexpected arrive step %+v", arrive)
	}
}

func TestCalculateRoute_NoRoute(t *testing.T) {
	r := newRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "message": "Impossible route between points"}`))
	})

	_, err := r.CalculateRoute(context.Background(), redSquare, bolshoi, nil, domain.RouteOptions{})
	if !errors.Is(err, domain.ErrRoutingFailed) {
		t.Errorf("expected ErrRoutingFailed, got %v", err)
	}
}

func TestCalculateRoute_DefaultsToDriving(t *testing.T) {
	r := newRouter(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/route/v1/driving/37.6208,55.7539;37.6186,55.7602" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("alternatives"); got != "false" {
			t.Errorf("expected alternatives=false, got %q", got)
		}
		w.Write([]byte(okBody))
	})

	if _, err := r.CalculateRoute(context.Background(), redSquare, bolshoi, nil, domain.RouteOptions{Profile: domain.ProfileTruck}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInstruction(t *testing.T) {
	tests := []struct {
		typ, modifier, want string
	}{
		{"depart", "", "Начните движение"},
		{"turn", "left", "Поверните налево"},
		{"turn", "sharp right", "Поверните направо"},
		{"continue", "", "Продолжайте движение прямо"},
		{"arrive", "", "Прибытие в пункт назначения"},
		{"merge", "", "Перестройтесь"},
		{"ramp", "", "Съезд"},
		{"roundabout", "", "Въезд на круговое движение"},
		{"roundabout exit", "", "Съезд с кругового движения"},
		{"new name", "", "Продолжайте движение"},
	}
	for _, tt := range tests {
		if got := osrm.Instruction(tt.typ, tt.modifier); got != tt.want {
			t.Errorf("Instruction(%q, %q) = %q, want %q", tt.typ, tt.modifier, got, tt.want)
		}
	}
}
