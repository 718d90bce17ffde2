package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/solarbatch/internal/adapters/csvexport"
	"github.com/okian/solarbatch/internal/adapters/solarapi"
	service "github.com/okian/solarbatch/internal/app"
	"github.com/okian/solarbatch/internal/domain/flatten"
	"github.com/okian/solarbatch/internal/domain/jsonvalue"
	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/okian/solarbatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

// fakeFetcher answers from a table keyed by "lat,lng".
type fakeFetcher struct {
	docs   map[string]string
	errs   map[string]error
	delay  func(model.CoordinateRequest) time.Duration
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
}

func key(c model.CoordinateRequest) string {
	return fmt.Sprintf("%g,%g", c.Latitude, c.Longitude)
}

func (f *fakeFetcher) FindClosest(_ context.Context, _ string, c model.CoordinateRequest) (jsonvalue.Value, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay != nil {
		time.Sleep(f.delay(c))
	}
	if err, ok := f.errs[key(c)]; ok {
		return jsonvalue.Value{}, err
	}
	doc, ok := f.docs[key(c)]
	if !ok {
		return jsonvalue.Value{}, errors.New("not found")
	}
	return jsonvalue.Parse([]byte(doc))
}

// recordingExporter captures what the service hands to the sink.
type recordingExporter struct {
	mu    sync.Mutex
	rows  []*flatten.Row
	name  string
	calls int
	err   error
}

func (e *recordingExporter) Export(_ context.Context, rows []*flatten.Row, name string) (*csvexport.Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.rows = rows
	e.name = name
	if e.err != nil {
		return nil, e.err
	}
	return &csvexport.Artifact{Path: "/tmp/" + name, Header: csvexport.Header(rows), Rows: len(rows)}, nil
}

func coord(lat, lng float64) model.CoordinateRequest {
	return model.CoordinateRequest{Latitude: lat, Longitude: lng}
}

func TestService_ProcessBatch(t *testing.T) {
	Convey("Given a service over a fake fetcher and a temp output directory", t, func() {
		dir := t.TempDir()
		fetcher := &fakeFetcher{
			docs: map[string]string{
				"37,-122": `{"solarPotential":{"maxArrayPanelsCount":42}}`,
				"1,2":     `{"a":1,"b":"x"}`,
			},
			errs: map[string]error{},
		}
		svc := service.New(
			service.WithFetcher(fetcher),
			service.WithExporter(csvexport.New(dir, csvexport.WithLogger(logger.Nop()))),
			service.WithLogger(logger.Nop()),
		)
		ctx := context.Background()

		Convey("When a single lookup succeeds", func() {
			rows, art, err := svc.ProcessBatch(ctx, "key", []model.CoordinateRequest{coord(37, -122)})

			Convey("Then the row holds the request echo and the flattened document", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].String(), ShouldEqual,
					`{"request_latitude":37,"request_longitude":-122,"solarPotential_maxArrayPanelsCount":42}`)
			})

			Convey("Then a CSV file with one data line is written", func() {
				So(art, ShouldNotBeNil)
				So(art.Rows, ShouldEqual, 1)
				data, readErr := os.ReadFile(art.Path)
				So(readErr, ShouldBeNil)
				So(string(data), ShouldEqual,
					"request_latitude,request_longitude,solarPotential_maxArrayPanelsCount\n37,-122,42\n")
				So(filepath.Dir(art.Path), ShouldEqual, dir)
			})
		})

		Convey("When a single lookup fails", func() {
			rows, _, err := svc.ProcessBatch(ctx, "key", []model.CoordinateRequest{coord(0, 0)})

			Convey("Then the batch still completes with an error row", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Keys(), ShouldResemble, []string{"latitude", "longitude", "error"})
				So(rows[0].String(), ShouldEqual, `{"latitude":0,"longitude":0,"error":"not found"}`)
			})
		})

		Convey("When the batch is empty", func() {
			rows, art, err := svc.ProcessBatch(ctx, "key", nil)

			Convey("Then no rows and no file are produced", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldNotBeNil)
				So(rows, ShouldBeEmpty)
				So(art, ShouldBeNil)
				entries, _ := os.ReadDir(dir)
				So(entries, ShouldBeEmpty)
				So(fetcher.calls.Load(), ShouldEqual, int32(0))
			})
		})

		Convey("When one item succeeds and one fails", func() {
			rows, art, err := svc.ProcessBatch(ctx, "key", []model.CoordinateRequest{coord(1, 2), coord(5, 5)})

			Convey("Then the header is the first-seen union and absent cells are empty", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(art.Header, ShouldResemble, []string{
					"request_latitude", "request_longitude", "a", "b", "latitude", "longitude", "error",
				})
				data, _ := os.ReadFile(art.Path)
				So(string(data), ShouldEqual,
					"request_latitude,request_longitude,a,b,latitude,longitude,error\n"+
						"1,2,1,x,,,\n"+
						",,,,5,5,not found\n")
			})
		})

		Convey("When many items fail in different ways", func() {
			fetcher.errs["3,3"] = &solarapi.ExternalAPIError{StatusCode: 500, Message: "Request failed with status code 500"}
			coords := []model.CoordinateRequest{coord(3, 3), coord(37, -122), coord(9, 9), coord(1, 2)}
			rows, _, err := svc.ProcessBatch(ctx, "key", coords)

			Convey("Then every input has exactly one row at its own index", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, len(coords))

				msg, _ := rows[0].Get("error")
				So(msg.Text(), ShouldEqual, "Request failed with status code 500")
				lat, _ := rows[1].Get("request_latitude")
				So(lat.Text(), ShouldEqual, "37")
				msg, _ = rows[2].Get("error")
				So(msg.Text(), ShouldEqual, "not found")
				a, _ := rows[3].Get("a")
				So(a.Text(), ShouldEqual, "1")
			})

			Convey("Then the statistics count items and failures", func() {
				stats := svc.GetStats()
				So(stats["batches"], ShouldEqual, int64(1))
				So(stats["items"], ShouldEqual, int64(4))
				So(stats["failures"], ShouldEqual, int64(2))
			})
		})
	})
}

func TestService_Export(t *testing.T) {
	Convey("Given a service whose exporter cannot write", t, func() {
		blocker := filepath.Join(t.TempDir(), "blocker")
		So(os.WriteFile(blocker, []byte("x"), 0o600), ShouldBeNil)

		svc := service.New(
			service.WithFetcher(&fakeFetcher{docs: map[string]string{"1,1": `{"ok":true}`}}),
			service.WithExporter(csvexport.New(filepath.Join(blocker, "out"), csvexport.WithLogger(logger.Nop()))),
			service.WithLogger(logger.Nop()),
		)

		rows, art, err := svc.ProcessBatch(context.Background(), "key", []model.CoordinateRequest{coord(1, 1)})

		Convey("Then the storage error is returned together with the rows", func() {
			So(errors.Is(err, csvexport.ErrStorage), ShouldBeTrue)
			So(art, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].String(), ShouldEqual, `{"request_latitude":1,"request_longitude":1,"ok":true}`)
		})
	})

	Convey("Given a recording exporter", t, func() {
		exp := &recordingExporter{}
		svc := service.New(
			service.WithFetcher(&fakeFetcher{}),
			service.WithExporter(exp),
			service.WithLogger(logger.Nop()),
		)

		Convey("When the caller names the batch", func() {
			_, art, err := svc.ProcessBatchNamed(context.Background(), "key", []model.CoordinateRequest{coord(1, 1)}, "nightly")

			Convey("Then the name reaches the exporter", func() {
				So(err, ShouldBeNil)
				So(exp.calls, ShouldEqual, 1)
				So(exp.name, ShouldEqual, "nightly")
				So(art.Path, ShouldEqual, "/tmp/nightly")
				So(svc.GetStats()["lastExportPath"], ShouldEqual, "/tmp/nightly")
			})
		})

		Convey("When the context carries a batch id", func() {
			ctx := model.WithBatchID(context.Background(), "batch-123")
			_, _, err := svc.ProcessBatch(ctx, "key", []model.CoordinateRequest{coord(1, 1)})

			Convey("Then that id is recorded", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["lastBatchId"], ShouldEqual, "batch-123")
			})
		})

		Convey("When the context carries no batch id", func() {
			_, _, err := svc.ProcessBatch(context.Background(), "key", nil)

			Convey("Then one is generated", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["lastBatchId"], ShouldHaveLength, 36)
			})
		})
	})
}

func TestService_Fetch(t *testing.T) {
	Convey("Given slow lookups whose latency shrinks with the index", t, func() {
		docs := map[string]string{}
		var coords []model.CoordinateRequest
		for i := 0; i < 8; i++ {
			c := coord(float64(i), float64(i))
			coords = append(coords, c)
			docs[key(c)] = fmt.Sprintf(`{"i":%d}`, i)
		}
		fetcher := &fakeFetcher{
			docs: docs,
			delay: func(c model.CoordinateRequest) time.Duration {
				return time.Duration(8-int(c.Latitude)) * 5 * time.Millisecond
			},
		}

		Convey("When fetched with a concurrency limit", func() {
			svc := service.New(
				service.WithFetcher(fetcher),
				service.WithExporter(&recordingExporter{}),
				service.WithConcurrency(3),
				service.WithLogger(logger.Nop()),
			)
			results := svc.Fetch(context.Background(), "key", coords)

			Convey("Then results keep input order and the limit holds", func() {
				So(results, ShouldHaveLength, len(coords))
				for i, r := range results {
					So(r.Index, ShouldEqual, i)
					So(r.OK(), ShouldBeTrue)
					v, _ := r.Insight.Get("i")
					So(v.Text(), ShouldEqual, fmt.Sprint(i))
				}
				So(fetcher.peak.Load(), ShouldBeLessThanOrEqualTo, int32(3))
				So(fetcher.calls.Load(), ShouldEqual, int32(len(coords)))
			})
		})

		Convey("When fetched with the default settings", func() {
			svc := service.New(
				service.WithFetcher(fetcher),
				service.WithExporter(&recordingExporter{}),
				service.WithLogger(logger.Nop()),
			)
			results := svc.Fetch(context.Background(), "key", coords[:3])

			Convey("Then lookups run one at a time", func() {
				So(results, ShouldHaveLength, 3)
				So(fetcher.peak.Load(), ShouldEqual, int32(1))
			})
		})
	})
}

func TestItemResult_Row(t *testing.T) {
	Convey("Given a failed result", t, func() {
		r := service.ItemResult{Request: coord(-33.5, 151.25), Err: errors.New("boom")}

		Convey("Then its row has exactly the coordinate and the message", func() {
			So(r.OK(), ShouldBeFalse)
			So(r.Row().String(), ShouldEqual, `{"latitude":-33.5,"longitude":151.25,"error":"boom"}`)
		})
	})

	Convey("Given a successful result whose document echoes a request column", t, func() {
		doc, err := jsonvalue.Parse([]byte(`{"request":{"longitude":0},"x":[1,{"y":2}]}`))
		So(err, ShouldBeNil)
		r := service.ItemResult{Request: coord(10, 20), Insight: doc}

		Convey("Then the document wins in place and arrays stay JSON", func() {
			So(r.Row().String(), ShouldEqual, `{"request_latitude":10,"request_longitude":0,"x":"[1,{\"y\":2}]"}`)
		})
	})
}
