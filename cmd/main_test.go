package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/smartystreets/goconvey/convey"

	app "github.com/Thiri06/Contact-Info-Capture-Agent/internal/app"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

const sampleCSV = "Full Name,Email,Phone Number\n" +
	"Sarah Tan,sarah@tech.com,+6591234567\n" +
	"Ben Ong,ben@example.com,\n" +
	"S. Tan,SARAH@tech.com,\n" +
	",nobody@example.com,\n"

func execute(stdin string, args ...string) (string, error) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func unsetIntakeEnv() {
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "INTAKE_") {
			_ = os.Unsetenv(name)
		}
	}
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		cmd := newRootCommand()

		convey.Convey("Then every subcommand is registered", func() {
			names := map[string]bool{}
			for _, c := range cmd.Commands() {
				names[c.Name()] = true
			}
			convey.So(names["serve"], convey.ShouldBeTrue)
			convey.So(names["import"], convey.ShouldBeTrue)
			convey.So(names["migrate"], convey.ShouldBeTrue)
			convey.So(names["seed"], convey.ShouldBeTrue)
		})
	})
}

func TestImportCommand(t *testing.T) {
	convey.Convey("Given a CSV on stdin and the memory store", t, func() {
		unsetIntakeEnv()

		convey.Convey("When it is imported with the table output", func() {
			out, err := execute(sampleCSV, "import", "-", "--submitted-by", "staff-1")

			convey.Convey("Then the counters and the rows needing attention are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Committed")
				convey.So(out, convey.ShouldContainSubstring, string(model.IssueDuplicate))
				convey.So(out, convey.ShouldContainSubstring, string(model.RowError))
			})
		})

		convey.Convey("When it is imported with JSON output", func() {
			out, err := execute(sampleCSV, "import", "-", "--json")
			convey.So(err, convey.ShouldBeNil)

			var res model.BatchImportResult
			convey.So(json.Unmarshal([]byte(out), &res), convey.ShouldBeNil)

			convey.Convey("Then every row is accounted for", func() {
				convey.So(res.Total, convey.ShouldEqual, 4)
				convey.So(res.Committed, convey.ShouldEqual, 2)
				convey.So(res.Duplicates, convey.ShouldEqual, 1)
				convey.So(res.Errors, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the file has no recognizable header", func() {
			_, err := execute("foo,bar\n1,2\n", "import", "-")

			convey.Convey("Then the command fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_, err := execute("", "import", filepath.Join(t.TempDir(), "missing.csv"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMigrateCommand(t *testing.T) {
	convey.Convey("Given the migrate command", t, func() {
		unsetIntakeEnv()
		convey.Reset(unsetIntakeEnv)

		convey.Convey("When the store is a SQLite file", func() {
			_ = os.Setenv("INTAKE_STORE_DRIVER", "sqlite")
			_ = os.Setenv("INTAKE_STORE_DSN", filepath.Join(t.TempDir(), "intake.db"))

			out, err := execute("", "migrate")

			convey.Convey("Then the schema version is reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "sqlite schema at version 1")
			})
		})

		convey.Convey("When the store is in memory", func() {
			_, err := execute("", "migrate")

			convey.Convey("Then there is nothing to migrate", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "no schema")
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			_ = os.Setenv("INTAKE_STORE_DRIVER", "postgres")

			_, err := execute("", "migrate")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestHandler(t *testing.T) {
	convey.Convey("Given the composed HTTP handler", t, func() {
		svc := app.New(app.WithWorkerCount(1))
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		convey.Reset(svc.Stop)
		h := newHandler(svc)

		for _, path := range []string{"/healthz", "/metrics", "/openapi.yaml", "/api-docs"} {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
		}
	})
}

func TestRenderImportResult(t *testing.T) {
	convey.Convey("renderImportResult hides committed rows unless asked", t, func() {
		var res model.BatchImportResult
		res.Add(model.RowOutcome{Row: 1, Status: model.RowCommitted, RecordID: "rec-1"})
		res.Add(model.RowOutcome{Row: 2, Status: model.RowError, Issues: []model.FieldIssue{{Field: model.FieldEmail, Issue: "invalid email"}}})

		short := renderImportResult(res, false, false)
		convey.So(short, convey.ShouldNotContainSubstring, "rec-1")
		convey.So(short, convey.ShouldContainSubstring, "invalid email")
		convey.So(short, convey.ShouldNotContainSubstring, "\x1b[")

		full := renderImportResult(res, true, false)
		convey.So(full, convey.ShouldContainSubstring, "rec-1")

		convey.Convey("Headers keep their case", func() {
			convey.So(short, convey.ShouldContainSubstring, "Committed")
			convey.So(short, convey.ShouldContainSubstring, "Detail")
			convey.So(short, convey.ShouldNotContainSubstring, "DETAIL")
		})

		convey.Convey("Colour marks each row by outcome", func() {
			text.EnableColors()
			coloured := renderImportResult(res, true, true)
			convey.So(coloured, convey.ShouldContainSubstring, text.FgRed.EscapeSeq())
			convey.So(coloured, convey.ShouldContainSubstring, text.FgGreen.EscapeSeq())
		})
	})
}

func TestColourOutput(t *testing.T) {
	convey.Convey("Buffers never receive colour", t, func() {
		var buf bytes.Buffer
		convey.So(colourOutput(&buf), convey.ShouldBeFalse)
	})
}
