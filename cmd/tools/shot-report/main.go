// Command shot-report renders an HTML report for a recorded session: a
// carry/total scatter of finalized shots and a refusal-reason breakdown.
//
// Usage:
//
//	go run ./cmd/tools/shot-report -db launchlab.db [-session <id>] [-out report.html]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/launchlab-data/launchlab/internal/db"
	"github.com/launchlab-data/launchlab/internal/storage/sqlite"
)

func main() {
	dbPath := flag.String("db", "launchlab.db", "Path to the sqlite database")
	sessionID := flag.String("session", "", "Session id (default: most recent)")
	outPath := flag.String("out", "report.html", "Output HTML path")
	flag.Parse()

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	session := *sessionID
	if session == "" {
		sessions, err := sqlite.ListSessions(database)
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("No sessions recorded")
		}
		session = sessions[0].ID
	}

	shots, err := sqlite.ListShots(database, session)
	if err != nil {
		log.Fatalf("Failed to list shots: %v", err)
	}
	if len(shots) == 0 {
		log.Fatalf("No shots in session %s", session)
	}

	page := components.NewPage()
	page.PageTitle = "Shot Report"
	page.AddCharts(carryScatter(session, shots), refusalBar(shots))

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *outPath, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	log.Printf("Wrote %s (%d shots)", *outPath, len(shots))
}

// carryScatter plots carry vs total distance for shots with a flight.
func carryScatter(session string, shots []sqlite.ShotRow) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Carry vs Total Distance",
			Subtitle: fmt.Sprintf("session %s", session),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "carry (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "total (m)"}),
	)

	data := make([]opts.ScatterData, 0, len(shots))
	for _, s := range shots {
		if s.Flight == nil {
			continue
		}
		data = append(data, opts.ScatterData{
			Value: []float64{s.Flight.CarryM, s.Flight.TotalM},
		})
	}
	scatter.AddSeries("shots", data)
	return scatter
}

// refusalBar counts shots per outcome, refusal reasons broken out.
func refusalBar(shots []sqlite.ShotRow) *charts.Bar {
	counts := map[string]int{}
	for _, s := range shots {
		key := "finalized"
		if s.Refused {
			key = s.RefusalReason
		}
		counts[key]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]opts.BarData, 0, len(keys))
	for _, k := range keys {
		values = append(values, opts.BarData{Value: counts[k]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Shot Outcomes"}))
	bar.SetXAxis(keys)
	bar.AddSeries("count", values)
	return bar
}
