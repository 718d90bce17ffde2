package model_test

import (
	"errors"
	"testing"

	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestDecodeBatchRequest(t *testing.T) {
	convey.Convey("Given batch request bodies", t, func() {
		convey.Convey("When the body is well formed", func() {
			req, err := model.DecodeBatchRequest([]byte(`{
				"key": "k",
				"parameters": [
					{"latitude": 37.4, "longitude": -122.08, "requiredQuality": "HIGH"},
					{"latitude": 0, "longitude": 0}
				]
			}`), 10)

			convey.Convey("Then every parameter is kept in order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(req.Key, convey.ShouldEqual, "k")
				convey.So(req.Parameters, convey.ShouldResemble, []model.CoordinateRequest{
					{Latitude: 37.4, Longitude: -122.08, RequiredQuality: model.QualityHigh},
					{Latitude: 0, Longitude: 0},
				})
			})
		})

		convey.Convey("When parameters is an empty array", func() {
			req, err := model.DecodeBatchRequest([]byte(`{"key":"k","parameters":[]}`), 10)

			convey.Convey("Then the empty batch is accepted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(req.Parameters, convey.ShouldBeEmpty)
			})
		})

		cases := []struct {
			name  string
			body  string
			field string
		}{
			{"malformed json", `{"key":`, "body"},
			{"missing key", `{"parameters":[]}`, "key"},
			{"blank key", `{"key":"  ","parameters":[]}`, "key"},
			{"missing parameters", `{"key":"k"}`, "parameters"},
			{"missing latitude", `{"key":"k","parameters":[{"longitude":1}]}`, "parameters[0].latitude"},
			{"missing longitude", `{"key":"k","parameters":[{"latitude":1}]}`, "parameters[0].longitude"},
			{"non numeric latitude", `{"key":"k","parameters":[{"latitude":"north","longitude":1}]}`, "parameters[0].latitude"},
			{"quoted longitude", `{"key":"k","parameters":[{"latitude":1,"longitude":"2"}]}`, "parameters[0].longitude"},
			{"null latitude", `{"key":"k","parameters":[{"latitude":null,"longitude":1}]}`, "parameters[0].latitude"},
			{"boolean latitude", `{"key":"k","parameters":[{"latitude":true,"longitude":1}]}`, "parameters[0].latitude"},
			{"latitude out of range", `{"key":"k","parameters":[{"latitude":1,"longitude":1},{"latitude":91,"longitude":1}]}`, "parameters[1].latitude"},
			{"longitude out of range", `{"key":"k","parameters":[{"latitude":1,"longitude":-181}]}`, "parameters[0].longitude"},
			{"unknown quality", `{"key":"k","parameters":[{"latitude":1,"longitude":1,"requiredQuality":"BEST"}]}`, "parameters[0].requiredQuality"},
			{"too many parameters", `{"key":"k","parameters":[{"latitude":1,"longitude":1},{"latitude":1,"longitude":1},{"latitude":1,"longitude":1}]}`, "parameters"},
		}

		for _, tc := range cases {
			_, err := model.DecodeBatchRequest([]byte(tc.body), 2)

			var ve *model.ValidationError
			convey.So(errors.As(err, &ve), convey.ShouldBeTrue)
			convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
			convey.So(ve.Field, convey.ShouldEqual, tc.field)
		}
	})
}

func TestDecodeCoordinates(t *testing.T) {
	convey.Convey("Given a coordinates array", t, func() {
		params, err := model.DecodeCoordinates([]byte(`[{"latitude":1.5,"longitude":-2,"requiredQuality":"LOW"},{"latitude":0,"longitude":0}]`))

		convey.Convey("Then the items decode in order", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(params, convey.ShouldResemble, []model.CoordinateRequest{
				{Latitude: 1.5, Longitude: -2, RequiredQuality: model.QualityLow},
				{Latitude: 0, Longitude: 0},
			})
		})
	})

	convey.Convey("Given invalid arrays", t, func() {
		cases := []struct {
			body  string
			field string
		}{
			{`null`, "parameters"},
			{`{"latitude":1}`, "parameters"},
			{`[{"longitude":10},{}]`, "parameters[0].latitude"},
			{`[{"latitude":1,"longitude":1},null]`, "parameters[1].latitude"},
			{`[{"latitude":1,"longitude":1},{"latitude":-91,"longitude":1}]`, "parameters[1].latitude"},
			{`[{"latitude":1,"longitude":1,"requiredQuality":"best"}]`, "parameters[0].requiredQuality"},
		}
		for _, tc := range cases {
			_, err := model.DecodeCoordinates([]byte(tc.body))

			var ve *model.ValidationError
			convey.So(errors.As(err, &ve), convey.ShouldBeTrue)
			convey.So(ve.Field, convey.ShouldEqual, tc.field)
		}
	})
}

func TestQuality(t *testing.T) {
	convey.Convey("Given quality tiers", t, func() {
		for _, q := range []model.Quality{model.QualityUnset, model.QualityHigh, model.QualityMedium, model.QualityLow} {
			convey.So(q.Valid(), convey.ShouldBeTrue)
		}
		convey.So(model.Quality("high").Valid(), convey.ShouldBeFalse)
	})
}
