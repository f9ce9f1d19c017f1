package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(Options{Output: &buf, Format: "json", Level: "info"}), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging at info with fields", func() {
			Named("solver").Info(ctx, "year cleared", Int("year", 2020), Float64("residual", 1e-5))

			Convey("Then the record carries the component and fields", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"msg":"year cleared"`)
				So(out, ShouldContainSubstring, `"component":"solver"`)
				So(out, ShouldContainSubstring, `"year":2020`)
			})
		})

		Convey("When logging below the level", func() {
			Get().Debug(ctx, "round", Int("round", 1))

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the level is lowered", func() {
			So(SetLevelString("debug"), ShouldBeNil)
			Get().Debug(ctx, "round", Error(errors.New("boom")))

			Convey("Then debug records appear", func() {
				So(buf.String(), ShouldContainSubstring, "boom")
			})
		})
	})

	Convey("Given bad options", t, func() {
		So(Init(Options{Level: "loud"}), ShouldNotBeNil)
		So(Init(Options{Format: "xml"}), ShouldNotBeNil)
	})

	Convey("Nop never panics", t, func() {
		So(func() { Nop().Named("x").Error(context.Background(), "dropped") }, ShouldNotPanic)
	})
}
