package scoring_test

import (
	"testing"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	scoring "github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTierOf(t *testing.T) {
	Convey("Tier boundaries are inclusive on the lower bound of each tier", t, func() {
		So(scoring.TierOf(100), ShouldEqual, scoring.TierHigh)
		So(scoring.TierOf(70), ShouldEqual, scoring.TierHigh)
		So(scoring.TierOf(69), ShouldEqual, scoring.TierMedium)
		So(scoring.TierOf(69.99), ShouldEqual, scoring.TierMedium)
		So(scoring.TierOf(45), ShouldEqual, scoring.TierMedium)
		So(scoring.TierOf(44), ShouldEqual, scoring.TierLow)
		So(scoring.TierOf(44.99), ShouldEqual, scoring.TierLow)
		So(scoring.TierOf(0), ShouldEqual, scoring.TierLow)
	})
}

func TestEvaluate(t *testing.T) {
	Convey("Given the tier evaluator", t, func() {
		ev := scoring.NewEvaluator()

		Convey("When an OCR candidate has a low email confidence", func() {
			rec := model.AttendeeRecord{
				Email:           "John@X.com",
				Source:          model.SourceOCR,
				FieldConfidence: map[model.Field]float64{model.FieldEmail: 30},
			}
			v := ev.Evaluate(&rec)

			Convey("Then the verdict is low and names the field", func() {
				So(v.Flagged(), ShouldBeTrue)
				So(v.LowFields, ShouldResemble, []model.Field{model.FieldEmail})
				So(v.Tiers[model.FieldFullName], ShouldEqual, scoring.TierHigh)
			})
		})

		Convey("When an OCR candidate only has medium fields", func() {
			rec := model.AttendeeRecord{
				Source: model.SourceOCR,
				FieldConfidence: map[model.Field]float64{
					model.FieldFullName: 98,
					model.FieldCompany:  55,
					model.FieldJobTitle: 45,
				},
			}
			v := ev.Evaluate(&rec)

			Convey("Then it is clean but medium fields are reported", func() {
				So(v.Overall, ShouldEqual, scoring.Clean)
				So(v.MediumFields, ShouldResemble, []model.Field{model.FieldCompany, model.FieldJobTitle})
			})
		})

		Convey("When the candidate is manual or imported", func() {
			for _, src := range []model.Source{model.SourceManual, model.SourceImport} {
				rec := model.AttendeeRecord{Source: src, FieldConfidence: map[model.Field]float64{model.FieldEmail: 1}}
				So(ev.Evaluate(&rec).Overall, ShouldEqual, scoring.Clean)
			}
		})

		Convey("When evaluating the same input twice", func() {
			rec := model.AttendeeRecord{Source: model.SourceOCR, FieldConfidence: map[model.Field]float64{model.FieldPhoneNumber: 44}}
			So(ev.Evaluate(&rec), ShouldResemble, ev.Evaluate(&rec))
		})
	})
}
