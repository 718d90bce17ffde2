package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/solarbatch/internal/adapters/csvexport"
	"github.com/okian/solarbatch/internal/adapters/http/api"
	"github.com/okian/solarbatch/internal/domain/flatten"
	"github.com/okian/solarbatch/internal/domain/jsonvalue"
	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/okian/solarbatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies echoes every coordinate as a one column row.
type mockDependencies struct {
	calls     int
	apiKey    string
	coords    []model.CoordinateRequest
	ctxErr    error
	batchID   string
	exportErr error
}

func (m *mockDependencies) ProcessBatch(ctx context.Context, apiKey string, coords []model.CoordinateRequest) ([]*flatten.Row, *csvexport.Artifact, error) {
	m.calls++
	m.apiKey = apiKey
	m.coords = coords
	m.ctxErr = ctx.Err()
	m.batchID, _ = model.BatchIDFromContext(ctx)

	rows := make([]*flatten.Row, 0, len(coords))
	for _, c := range coords {
		r := flatten.NewRow()
		r.Set("lat", jsonvalue.Float(c.Latitude))
		rows = append(rows, r)
	}
	if m.exportErr != nil {
		return rows, nil, m.exportErr
	}
	if len(rows) == 0 {
		return rows, nil, nil
	}
	return rows, &csvexport.Artifact{Path: "output/batch.csv", Rows: len(rows)}, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	opts = append(opts, api.WithLogger(logger.Nop()))
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"batches": 3}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func post(mux http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/solar/buildingInsights", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		panic(err)
	}
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then the health endpoint serves metrics", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint returns the provider's counters", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"batches":3}`)
		})

		Convey("Then the batch endpoint rejects other methods", func() {
			req := httptest.NewRequest(http.MethodGet, "/solar/buildingInsights", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)
		})
	})
}

func TestInsightsHandler(t *testing.T) {
	Convey("Given a batch endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.WithMaxBatchSize(2))

		Convey("When the request is valid", func() {
			w := post(mux, `{"key":"abc","parameters":[{"latitude":37.5,"longitude":-122},{"latitude":0,"longitude":0,"requiredQuality":"LOW"}]}`)

			Convey("Then the rows are returned in input order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `[{"lat":37.5},{"lat":0}]`)
				So(deps.apiKey, ShouldEqual, "abc")
				So(deps.coords, ShouldResemble, []model.CoordinateRequest{
					{Latitude: 37.5, Longitude: -122},
					{Latitude: 0, Longitude: 0, RequiredQuality: model.QualityLow},
				})
			})

			Convey("Then the batch id and export path are exposed", func() {
				So(w.Header().Get(api.HeaderBatchID), ShouldEqual, deps.batchID)
				So(w.Header().Get(api.HeaderBatchID), ShouldHaveLength, 36)
				So(w.Header().Get(api.HeaderExportPath), ShouldEqual, "output/batch.csv")
			})
		})

		Convey("When the parameters are empty", func() {
			w := post(mux, `{"key":"abc","parameters":[]}`)

			Convey("Then an empty array is returned without an export path", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `[]`)
				So(w.Header().Get(api.HeaderExportPath), ShouldBeEmpty)
			})
		})

		Convey("When the request is invalid", func() {
			bodies := []string{
				`{"key":`,
				`{"parameters":[]}`,
				`{"key":"  ","parameters":[]}`,
				`{"key":"abc"}`,
				`{"key":"abc","parameters":[{"latitude":"1","longitude":2}]}`,
				`{"key":"abc","parameters":[{"latitude":91,"longitude":2}]}`,
				`{"key":"abc","parameters":[{"latitude":1,"longitude":2,"requiredQuality":"BEST"}]}`,
				`{"key":"abc","parameters":[{"latitude":1,"longitude":1},{"latitude":2,"longitude":2},{"latitude":3,"longitude":3}]}`,
			}

			Convey("Then each is rejected before any lookup", func() {
				for _, body := range bodies {
					w := post(mux, body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decodeError(w)["code"], ShouldEqual, "bad_request")
					So(deps.calls, ShouldEqual, 0)
				}
			})
		})

		Convey("When the field path is reported", func() {
			w := post(mux, `{"key":"abc","parameters":[{"latitude":1,"longitude":2},{"latitude":1,"longitude":200}]}`)

			Convey("Then the message names the offending item", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["message"], ShouldStartWith, "parameters[1].longitude")
			})
		})

		Convey("When the client has already gone away", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			req := httptest.NewRequest(http.MethodPost, "/solar/buildingInsights",
				strings.NewReader(`{"key":"abc","parameters":[{"latitude":1,"longitude":2}]}`)).WithContext(ctx)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the batch still runs to completion", func() {
				So(deps.calls, ShouldEqual, 1)
				So(deps.ctxErr, ShouldBeNil)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the export fails", func() {
			deps.exportErr = &csvexport.StorageError{Op: csvexport.OpMkdir, Path: "output", Err: context.DeadlineExceeded}
			w := post(mux, `{"key":"abc","parameters":[{"latitude":1,"longitude":2}]}`)

			Convey("Then a storage error carries the computed rows", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decodeError(w)
				So(body["code"], ShouldEqual, "storage_error")
				So(body["message"], ShouldNotBeEmpty)
				So(body["rows"], ShouldResemble, []any{map[string]any{"lat": float64(1)}})
				So(w.Header().Get(api.HeaderExportPath), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a small body limit", t, func() {
		mux := newMux(&mockDependencies{}, api.WithMaxBodyBytes(16))
		w := post(mux, `{"key":"abc","parameters":[{"latitude":1,"longitude":2}]}`)

		Convey("Then oversized bodies are refused", func() {
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			So(decodeError(w)["code"], ShouldEqual, "body_too_large")
		})
	})
}
