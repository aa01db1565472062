package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/samirrijal/tripsummary/internal/adapters/filecache"
	"github.com/samirrijal/tripsummary/internal/adapters/filestore"
	handler "github.com/samirrijal/tripsummary/internal/adapters/http"
	"github.com/samirrijal/tripsummary/internal/core/domain"
	"github.com/samirrijal/tripsummary/internal/core/usecases"
)

// ---- Mock repository ----

type mockTrackRepo struct {
	mu       sync.Mutex
	tracks   map[int64]*domain.Track
	upsertFn func(ctx context.Context, t *domain.Track) error
	listFn   func(ctx context.Context, offset, limit int) ([]domain.Track, error)
}

func newMockTrackRepo() *mockTrackRepo {
	return &mockTrackRepo{tracks: make(map[int64]*domain.Track)}
}

func (m *mockTrackRepo) Upsert(ctx context.Context, t *domain.Track) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tracks[t.PostID] = &cp
	return nil
}

func (m *mockTrackRepo) Get(ctx context.Context, postID int64) (*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[postID]
	if !ok {
		return nil, domain.ErrTrackNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTrackRepo) Delete(ctx context.Context, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, postID)
	return nil
}

func (m *mockTrackRepo) Exists(ctx context.Context, postID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracks[postID]
	return ok, nil
}

func (m *mockTrackRepo) StatusByIDs(ctx context.Context, postIDs []int64) ([]domain.TrackStatus, error) {
	out := make([]domain.TrackStatus, 0, len(postIDs))
	for _, id := range postIDs {
		ok, _ := m.Exists(ctx, id)
		out = append(out, domain.TrackStatus{PostID: id, HasTrack: ok})
	}
	return out, nil
}

func (m *mockTrackRepo) List(ctx context.Context, offset, limit int) ([]domain.Track, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []domain.Track{}
	for i, id := range ids {
		if i >= offset && len(out) < limit {
			out = append(out, *m.tracks[id])
		}
	}
	return out, nil
}

func (m *mockTrackRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks), nil
}

// ---- Test helpers ----

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
  <trk><name>Ridge walk</name><trkseg>
    <trkpt lat="45.0000" lon="24.0000"><ele>500</ele></trkpt>
    <trkpt lat="45.0010" lon="24.0001"><ele>520</ele></trkpt>
    <trkpt lat="45.0020" lon="24.0000"><ele>560</ele></trkpt>
    <trkpt lat="45.0500" lon="24.0500"><ele>610</ele></trkpt>
    <trkpt lat="45.1000" lon="24.0000"><ele>540</ele></trkpt>
  </trkseg></trk>
</gpx>`

type testEnv struct {
	app   *fiber.App
	repo  *mockTrackRepo
	files *filestore.Store
	cache *filecache.Cache
	dir   string
	deps  *handler.Dependencies
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func newTestEnv(t *testing.T, opts ...func(*handler.Dependencies)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	files, err := filestore.New(uploads)
	if err != nil {
		t.Fatal(err)
	}
	cache, err := filecache.New(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	repo := newMockTrackRepo()

	deps := &handler.Dependencies{
		Tracks: usecases.NewTrackService(repo, files,
			usecases.WithTrackCache(cache),
			usecases.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
		),
		Cache:          cache,
		Units:          domain.UnitSystemMetric,
		MaxUploadBytes: 1 << 20,
	}
	for _, o := range opts {
		o(deps)
	}
	return &testEnv{app: setupApp(deps), repo: repo, files: files, cache: cache, dir: uploads, deps: deps}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, headers ...string) *httpResponse {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return &httpResponse{Status: resp.StatusCode, Header: resp.Header.Get, Body: data}
}

type httpResponse struct {
	Status int
	Header func(string) string
	Body   []byte
}

func (r *httpResponse) decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("decode %s: %v", r.Body, err)
	}
}

func (e *testEnv) upload(t *testing.T, id int64, gpx string) {
	t.Helper()
	resp := e.do(t, "PUT", fmt.Sprintf("/v1/tracks/%d", id), strings.NewReader(gpx), handler.HeaderUserID, "7")
	if resp.Status != 201 {
		t.Fatalf("upload: expected 201, got %d: %s", resp.Status, resp.Body)
	}
}

type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---- Upload ----

func TestUploadTrack_Success(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "PUT", "/v1/tracks/12", strings.NewReader(sampleGPX), handler.HeaderUserID, "7")
	if resp.Status != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.Status, resp.Body)
	}

	var result struct {
		Track  domain.Track `json:"track"`
		Points int          `json:"points"`
	}
	resp.decode(t, &result)
	if result.Points != 5 {
		t.Errorf("expected 5 points, got %d", result.Points)
	}
	if result.Track.ModifiedBy != 7 {
		t.Errorf("expected modified_by 7, got %d", result.Track.ModifiedBy)
	}
	if result.Track.Bounds.NorthEast.Lat != 45.1 || result.Track.Bounds.SouthWest.Lng != 24 {
		t.Errorf("unexpected bounds %+v", result.Track.Bounds)
	}
	if !strings.HasPrefix(result.Track.File, "track-12-") {
		t.Errorf("unexpected file name %q", result.Track.File)
	}
	if _, err := env.files.Read(context.Background(), result.Track.File); err != nil {
		t.Errorf("file should be stored: %v", err)
	}
}

func TestUploadTrack_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		header []string
		status int
		code   string
	}{
		{"malformed", "/v1/tracks/1", "<gpx><trk>", nil, 422, "unparseable_track"},
		{"not gpx", "/v1/tracks/1", "<kml></kml>", nil, 422, "unparseable_track"},
		{"soft errors", "/v1/tracks/1", `<gpx><trk><trkseg><trkpt lat="1" lon="1"/><trkpt lat="91" lon="1"/></trkseg></trk></gpx>`, nil, 422, "track_has_errors"},
		{"empty body", "/v1/tracks/1", "", nil, 400, "bad_request"},
		{"no points", "/v1/tracks/1", "<gpx><trk></trk></gpx>", nil, 400, "bad_request"},
		{"bad id", "/v1/tracks/abc", sampleGPX, nil, 400, "bad_request"},
		{"zero id", "/v1/tracks/0", sampleGPX, nil, 400, "bad_request"},
		{"bad user", "/v1/tracks/1", sampleGPX, []string{handler.HeaderUserID, "bob"}, 400, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(t, "PUT", tt.target, strings.NewReader(tt.body), tt.header...)
			if resp.Status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.Status, resp.Body)
			}
			var e apiError
			resp.decode(t, &e)
			if e.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, e.Code)
			}
			if len(env.repo.tracks) != 0 {
				t.Error("rejected upload must not be stored")
			}
		})
	}
}

func TestUploadTrack_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(d *handler.Dependencies) { d.MaxUploadBytes = 64 })

	resp := env.do(t, "POST", "/v1/tracks/3", strings.NewReader(sampleGPX))
	if resp.Status != 413 {
		t.Fatalf("expected 413, got %d", resp.Status)
	}
}

func (e *testEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestUploadTrack_OutsideProjection(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 4, sampleGPX)
	before := env.storedFiles(t)

	polar := `<gpx><trk><trkseg><trkpt lat="89.5" lon="10"/><trkpt lat="89.6" lon="11"/></trkseg></trk></gpx>`
	resp := env.do(t, "PUT", "/v1/tracks/4", strings.NewReader(polar))
	if resp.Status != 400 {
		t.Fatalf("expected 400 for a track beyond the projection limit, got %d", resp.Status)
	}
	var apiErr handler.APIError
	resp.decode(t, &apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %q", apiErr.Code)
	}

	if after := env.storedFiles(t); len(after) != 1 || after[0] != before[0] {
		t.Fatalf("stored files changed from %v to %v", before, after)
	}

	// with the cache gone the view is rebuilt from the stored file
	if err := env.cache.Invalidate(context.Background(), 4); err != nil {
		t.Fatal(err)
	}
	view := env.do(t, "GET", "/v1/tracks/4", nil)
	if view.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", view.Status, view.Body)
	}
	var got struct {
		Start  domain.Point  `json:"start"`
		Bounds domain.Bounds `json:"bounds"`
	}
	view.decode(t, &got)
	if got.Start.Lat != 45 || got.Bounds.NorthEast.Lat != 45.1 {
		t.Errorf("expected the original route, got start %+v bounds %+v", got.Start, got.Bounds)
	}
}

func TestUploadTrack_ReplaceRemovesOldFile(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 4, sampleGPX)
	env.upload(t, 4, strings.ReplaceAll(sampleGPX, `lat="45.`, `lat="46.`))

	if files := env.storedFiles(t); len(files) != 1 || files[0] != env.repo.tracks[4].File {
		t.Fatalf("expected only %s stored, found %v", env.repo.tracks[4].File, files)
	}
	view := env.do(t, "GET", "/v1/tracks/4", nil)
	var got struct {
		Start domain.Point `json:"start"`
	}
	view.decode(t, &got)
	if got.Start.Lat != 46 {
		t.Errorf("expected the replacement route, got %+v", got.Start)
	}
}

func TestUploadTrack_RepoFailureKeepsOldFile(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 4, sampleGPX)
	before := env.storedFiles(t)

	env.repo.upsertFn = func(ctx context.Context, t *domain.Track) error {
		return fmt.Errorf("connection reset")
	}
	resp := env.do(t, "PUT", "/v1/tracks/4", strings.NewReader(sampleGPX))
	if resp.Status != 500 {
		t.Fatalf("expected 500, got %d", resp.Status)
	}
	if after := env.storedFiles(t); len(after) != 1 || after[0] != before[0] {
		t.Errorf("stored files changed from %v to %v", before, after)
	}
}

func TestUploadTrack_KeepsPreviousOnFailure(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 4, sampleGPX)

	resp := env.do(t, "PUT", "/v1/tracks/4", strings.NewReader("<gpx><trk>"))
	if resp.Status != 422 {
		t.Fatalf("expected 422, got %d", resp.Status)
	}

	view := env.do(t, "GET", "/v1/tracks/4", nil)
	if view.Status != 200 {
		t.Fatalf("previous track should still be served, got %d", view.Status)
	}
}

// ---- View ----

func TestGetTrack_ReadThroughCache(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)

	first := env.do(t, "GET", "/v1/tracks/12", nil)
	if first.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", first.Status, first.Body)
	}
	if got := first.Header("X-Track-Cache"); got != "miss" {
		t.Errorf("expected cache miss, got %q", got)
	}

	var view struct {
		PostID  int64            `json:"post_id"`
		Route   []domain.Segment `json:"route"`
		Bounds  domain.Bounds    `json:"bounds"`
		Start   domain.Point     `json:"start"`
		End     domain.Point     `json:"end"`
		MinAlt  *float64         `json:"min_alt"`
		MaxAlt  *float64         `json:"max_alt"`
		Points  int              `json:"points"`
		Partial bool             `json:"partial"`
	}
	first.decode(t, &view)
	if view.Points >= 5 || view.Points < 2 {
		t.Errorf("expected a simplified route, got %d points", view.Points)
	}
	if view.Start.Lat != 45 || view.End.Lat != 45.1 {
		t.Errorf("endpoints must be kept, got %+v %+v", view.Start, view.End)
	}
	if view.MinAlt == nil || *view.MinAlt != 500 || view.MaxAlt == nil || *view.MaxAlt != 610 {
		t.Errorf("unexpected altitudes %v %v", view.MinAlt, view.MaxAlt)
	}
	if view.Partial {
		t.Error("view should not be partial")
	}

	second := env.do(t, "GET", "/v1/tracks/12", nil)
	if got := second.Header("X-Track-Cache"); got != "hit" {
		t.Errorf("expected cache hit, got %q", got)
	}
	if string(second.Body) != string(first.Body) {
		t.Errorf("cached view differs:\n%s\n%s", first.Body, second.Body)
	}
}

func TestGetTrack_Polyline(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)

	resp := env.do(t, "GET", "/v1/tracks/12?format=polyline", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	var view struct {
		Route    []string `json:"route"`
		Encoding string   `json:"encoding"`
	}
	resp.decode(t, &view)
	if len(view.Route) != 1 || view.Encoding != "polyline5" {
		t.Fatalf("unexpected polyline view %+v", view)
	}
	coords, _, err := polyline.DecodeCoords([]byte(view.Route[0]))
	if err != nil {
		t.Fatal(err)
	}
	if coords[0][0] != 45 || coords[0][1] != 24 {
		t.Errorf("unexpected first coordinate %v", coords[0])
	}

	bad := env.do(t, "GET", "/v1/tracks/12?format=kml", nil)
	if bad.Status != 400 {
		t.Errorf("expected 400 for unknown format, got %d", bad.Status)
	}
}

func TestGetTrack_GeoJSON(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)

	resp := env.do(t, "GET", "/v1/tracks/12/geojson", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if ct := resp.Header("Content-Type"); ct != "application/geo+json" {
		t.Errorf("unexpected content type %q", ct)
	}

	fc, err := geojson.UnmarshalFeatureCollection(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("expected route, start and end features, got %d", len(fc.Features))
	}
	route, ok := fc.Features[0].Geometry.(orb.MultiLineString)
	if !ok || len(route) != 1 {
		t.Fatalf("expected one-line MultiLineString, got %T", fc.Features[0].Geometry)
	}
	if route[0][0] != (orb.Point{24, 45}) {
		t.Errorf("expected lng/lat order, got %v", route[0][0])
	}
	if fc.Features[1].Properties["kind"] != "start" || fc.Features[2].Properties["kind"] != "end" {
		t.Errorf("unexpected point features %v %v", fc.Features[1].Properties, fc.Features[2].Properties)
	}
}

func TestGetTrack_Errors(t *testing.T) {
	env := newTestEnv(t)

	if resp := env.do(t, "GET", "/v1/tracks/99", nil); resp.Status != 404 {
		t.Errorf("expected 404 for unknown track, got %d", resp.Status)
	}
	if resp := env.do(t, "GET", "/v1/tracks/-1", nil); resp.Status != 400 {
		t.Errorf("expected 400 for negative id, got %d", resp.Status)
	}

	env.repo.tracks[5] = &domain.Track{PostID: 5, File: "track-5.gpx"}
	resp := env.do(t, "GET", "/v1/tracks/5", nil)
	if resp.Status != 404 {
		t.Fatalf("expected 404 for missing file, got %d", resp.Status)
	}
	var e apiError
	resp.decode(t, &e)
	if e.Message != "track file not found or is not readable" {
		t.Errorf("unexpected message %q", e.Message)
	}
}

func TestGetTrack_Partial(t *testing.T) {
	env := newTestEnv(t)
	partial := `<gpx><trk><trkseg><trkpt lat="1" lon="1"/><trkpt lon="1"/><trkpt lat="2" lon="2"/></trkseg></trk></gpx>`
	if _, err := env.files.Save(context.Background(), 6, strings.NewReader(partial)); err != nil {
		t.Fatal(err)
	}
	env.repo.tracks[6] = &domain.Track{PostID: 6, File: "track-6.gpx"}

	resp := env.do(t, "GET", "/v1/tracks/6", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Body)
	}
	var view struct {
		Partial bool   `json:"partial"`
		Message string `json:"message"`
		Points  int    `json:"points"`
	}
	resp.decode(t, &view)
	if !view.Partial || view.Message != "track could not be fully read" {
		t.Errorf("expected partial view, got %+v", view)
	}
	if view.Points != 2 {
		t.Errorf("expected 2 readable points, got %d", view.Points)
	}
}

func TestGetTrack_ETag(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)

	first := env.do(t, "GET", "/v1/tracks/12", nil)
	etag := first.Header("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	second := env.do(t, "GET", "/v1/tracks/12", nil, "If-None-Match", etag)
	if second.Status != 304 {
		t.Errorf("expected 304, got %d", second.Status)
	}
}

func TestMiddlewareChain(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)

	resp := env.do(t, "GET", "/v1/tracks/12", nil)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-API-Version":          "1.0.0",
		"Cache-Control":          "public, max-age=60, must-revalidate",
	} {
		if got := resp.Header(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
	if resp.Header(fiber.HeaderXRequestID) == "" {
		t.Error("expected a request id")
	}
	if etag := resp.Header("ETag"); !strings.HasPrefix(etag, `W/"`) {
		t.Errorf("expected a weak ETag, got %q", etag)
	}

	missing := env.do(t, "GET", "/v1/tracks/999", nil)
	if missing.Header("ETag") != "" || missing.Header("Cache-Control") != "no-store" {
		t.Errorf("errors must not be cached, got ETag %q Cache-Control %q", missing.Header("ETag"), missing.Header("Cache-Control"))
	}
}

// ---- Profile ----

func TestTrackProfile(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)

	resp := env.do(t, "GET", "/v1/tracks/12/profile?units=imperial", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	var p domain.AltitudeProfile
	resp.decode(t, &p)
	if p.DistanceUnit != "mi" || p.HeightUnit != "ft" {
		t.Errorf("unexpected units %s/%s", p.DistanceUnit, p.HeightUnit)
	}
	if len(p.Points) < 2 || p.Points[0].Distance != 0 {
		t.Fatalf("unexpected profile %+v", p.Points)
	}
	if last := p.Points[len(p.Points)-1]; last.Distance <= 0 {
		t.Errorf("distance should accumulate, got %v", last.Distance)
	}

	def := env.do(t, "GET", "/v1/tracks/12/profile", nil)
	var metric domain.AltitudeProfile
	def.decode(t, &metric)
	if metric.UnitSystem != domain.UnitSystemMetric {
		t.Errorf("expected configured metric default, got %s", metric.UnitSystem)
	}

	if bad := env.do(t, "GET", "/v1/tracks/12/profile?units=furlongs", nil); bad.Status != 400 {
		t.Errorf("expected 400, got %d", bad.Status)
	}
}

// ---- Delete ----

func TestDeleteTrack(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)
	env.do(t, "GET", "/v1/tracks/12", nil)

	resp := env.do(t, "DELETE", "/v1/tracks/12", nil)
	if resp.Status != 204 {
		t.Fatalf("expected 204, got %d", resp.Status)
	}
	if resp := env.do(t, "GET", "/v1/tracks/12", nil); resp.Status != 404 {
		t.Errorf("expected 404 after delete, got %d", resp.Status)
	}
	if resp := env.do(t, "DELETE", "/v1/tracks/12", nil); resp.Status != 404 {
		t.Errorf("expected 404 for second delete, got %d", resp.Status)
	}
}

// ---- List & status ----

func TestListTracks_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for id := int64(1); id <= 5; id++ {
		env.repo.tracks[id] = &domain.Track{PostID: id, File: fmt.Sprintf("track-%d.gpx", id)}
	}

	resp := env.do(t, "GET", "/v1/tracks?offset=2&limit=2", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	var result struct {
		Data       []domain.Track `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	resp.decode(t, &result)
	if result.Pagination.Total != 5 || len(result.Data) != 2 || result.Pagination.Offset != 2 {
		t.Errorf("unexpected page %+v", result.Pagination)
	}
	if result.Data[0].PostID != 3 {
		t.Errorf("expected post 3 first, got %d", result.Data[0].PostID)
	}
	link := resp.Header("Link")
	if !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("expected prev and next links, got %q", link)
	}
}

func TestTrackStatus(t *testing.T) {
	env := newTestEnv(t)
	env.repo.tracks[2] = &domain.Track{PostID: 2}

	resp := env.do(t, "GET", "/v1/tracks/status?ids=1,2,%203", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Body)
	}
	var statuses []domain.TrackStatus
	resp.decode(t, &statuses)
	want := []domain.TrackStatus{{PostID: 1}, {PostID: 2, HasTrack: true}, {PostID: 3}}
	if len(statuses) != len(want) {
		t.Fatalf("expected %d statuses, got %d", len(want), len(statuses))
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("status %d: expected %+v, got %+v", i, want[i], statuses[i])
		}
	}

	for _, q := range []string{"", "?ids=", "?ids=1,x", "?ids=" + strings.Repeat("1,", 101)} {
		if resp := env.do(t, "GET", "/v1/tracks/status"+q, nil); resp.Status != 400 {
			t.Errorf("%q: expected 400, got %d", q, resp.Status)
		}
	}
}

// ---- GraphQL ----

func TestGraphQL_Track(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, 12, sampleGPX)

	query := `{"query":"{ track(id: 12) { post_id points polyline start { lat lng ele } bounds { northEast { lat } } max_alt } trackStatus(ids: [12, 13]) { post_id has_track } }"}`
	resp := env.do(t, "POST", "/graphql", strings.NewReader(query), "Content-Type", "application/json")
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}

	var result struct {
		Data struct {
			Track struct {
				PostID   int      `json:"post_id"`
				Points   int      `json:"points"`
				Polyline []string `json:"polyline"`
				Start    struct {
					Lat float64  `json:"lat"`
					Ele *float64 `json:"ele"`
				} `json:"start"`
				Bounds struct {
					NorthEast struct {
						Lat float64 `json:"lat"`
					} `json:"northEast"`
				} `json:"bounds"`
				MaxAlt float64 `json:"max_alt"`
			} `json:"track"`
			TrackStatus []domain.TrackStatus `json:"trackStatus"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	resp.decode(t, &result)
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	tr := result.Data.Track
	if tr.PostID != 12 || tr.Start.Lat != 45 || tr.Bounds.NorthEast.Lat != 45.1 || tr.MaxAlt != 610 {
		t.Errorf("unexpected track %+v", tr)
	}
	if tr.Start.Ele == nil || *tr.Start.Ele != 500 {
		t.Errorf("expected start elevation 500, got %v", tr.Start.Ele)
	}
	if len(tr.Polyline) != 1 {
		t.Errorf("expected one encoded segment, got %d", len(tr.Polyline))
	}
	if len(result.Data.TrackStatus) != 2 || !result.Data.TrackStatus[0].HasTrack || result.Data.TrackStatus[1].HasTrack {
		t.Errorf("unexpected statuses %+v", result.Data.TrackStatus)
	}
}

func TestGraphQL_UnknownTrackIsNull(t *testing.T) {
	env := newTestEnv(t)

	query := `{"query":"{ track(id: 404) { post_id } }"}`
	resp := env.do(t, "POST", "/graphql", strings.NewReader(query), "Content-Type", "application/json")
	if !strings.Contains(string(resp.Body), `"track":null`) {
		t.Errorf("expected null track, got %s", resp.Body)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "GET", "/v1/health", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
}

func TestReady_NoDatabase(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "GET", "/v1/ready", nil)
	if resp.Status != 503 {
		t.Fatalf("expected 503 without a database, got %d", resp.Status)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	resp.decode(t, &body)
	if body.Checks["cache"] != "ok" {
		t.Errorf("expected cache ok, got %q", body.Checks["cache"])
	}
	if body.Checks["database"] != "not configured" {
		t.Errorf("expected database not configured, got %q", body.Checks["database"])
	}
}

func TestDocs(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "GET", "/docs/openapi.yaml", nil)
	if resp.Status != 200 || !strings.HasPrefix(string(resp.Body), "openapi:") {
		t.Errorf("expected embedded openapi document, got %d", resp.Status)
	}

	resp = env.do(t, "GET", "/docs/openapi.json", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200 for json document, got %d", resp.Status)
	}
	var doc struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	resp.decode(t, &doc)
	if doc.OpenAPI != "3.0.3" {
		t.Errorf("expected openapi 3.0.3, got %q", doc.OpenAPI)
	}
	if _, ok := doc.Paths["/v1/tracks/{id}"]; !ok {
		t.Errorf("expected /v1/tracks/{id} in json document")
	}
}
