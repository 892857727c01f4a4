package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *App) {
	t.Helper()
	app := newTestApp(t)
	srv := httptest.NewServer(NewServer(app).Handler())
	t.Cleanup(srv.Close)
	return srv, app
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleListStrategies(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/strategies")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Singular  []string `json:"singular"`
		Redundant []string `json:"redundant"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Singular) != 2 {
		t.Errorf("singular = %v, want 2 entries", body.Singular)
	}
	if len(body.Redundant) != 1 {
		t.Errorf("redundant = %v, want 1 entry", body.Redundant)
	}
}

func TestHandleObserve(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(observeRequest{Estimator: "wifi_rtt", Value: 150})
	resp, err := http.Post(srv.URL+"/observe", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["new_estimate"] != 150 {
		t.Errorf("new_estimate = %v, want 150", out["new_estimate"])
	}
}

func TestHandleObserveUnknownEstimator(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(observeRequest{Estimator: "does_not_exist", Value: 1})
	resp, err := http.Post(srv.URL+"/observe", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleChoose(t *testing.T) {
	srv, app := newTestServer(t)

	wifi, _ := app.Registry.Get("wifi_rtt")
	wifi.AddObservation(50)
	cellular, _ := app.Registry.Get("cellular_rtt")
	cellular.AddObservation(200)

	resp, err := http.Post(srv.URL+"/choose", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out chooseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Strategy == "" {
		t.Error("expected a non-empty chosen strategy name")
	}

	records, err := app.Decisions.TailDecisions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 recorded decision, got %d", len(records))
	}
}

func TestHandleChooseAsync(t *testing.T) {
	srv, app := newTestServer(t)

	wifi, _ := app.Registry.Get("wifi_rtt")
	wifi.AddObservation(50)
	cellular, _ := app.Registry.Get("cellular_rtt")
	cellular.AddObservation(200)

	resp, err := http.Post(srv.URL+"/choose/async", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestHandleDecisionsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/decisions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out []any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("expected no decisions yet, got %d", len(out))
	}
}
