package seeder

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := DefaultConfig()
		cfg.Count = 200

		Convey("Runs with the same seed are identical apart from keys", func() {
			a := NewGenerator(42).Generate(&cfg)
			b := NewGenerator(42).Generate(&cfg)
			So(len(a), ShouldEqual, 200)
			for i := range a {
				So(a[i].Body, ShouldResemble, b[i].Body)
				So(a[i].Key, ShouldNotEqual, b[i].Key)
			}
		})

		Convey("The first submission is never a duplicate", func() {
			subs := NewGenerator(7).Generate(&cfg)
			So(subs[0].Duplicate, ShouldBeFalse)
		})

		Convey("Every manual body carries a name and a plain email", func() {
			cfg.CaptureRatio = 0
			for _, s := range NewGenerator(3).Generate(&cfg) {
				a, ok := s.Body.(Attendee)
				So(ok, ShouldBeTrue)
				So(a.FullName, ShouldNotBeBlank)
				So(a.Email, ShouldContainSubstring, "@")
			}
		})

		Convey("Captures carry confidences in range", func() {
			cfg.CaptureRatio = 1
			for _, s := range NewGenerator(5).Generate(&cfg) {
				So(s.Kind, ShouldEqual, KindCapture)
				c := s.Body.(Capture)
				So(c.Fields, ShouldContainKey, "fullName")
				for _, f := range c.Fields {
					So(f.Confidence, ShouldBeBetweenOrEqual, 10, 99)
				}
			}
		})

		Convey("No duplicates are produced when the ratio is zero", func() {
			cfg.DuplicateRatio = 0
			for _, s := range NewGenerator(9).Generate(&cfg) {
				So(s.Duplicate, ShouldBeFalse)
			}
		})
	})
}

func TestSlug(t *testing.T) {
	Convey("slug keeps ASCII letters and digits", t, func() {
		So(slug("O'Connor"), ShouldEqual, "oconnor")
		So(slug("Anne-Marie 2"), ShouldEqual, "annemarie2")
		So(slug("...."), ShouldEqual, "guest")
	})
}
