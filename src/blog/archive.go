package blog

import (
	"context"
	"sort"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/oops"
)

type ArchiveMonth struct {
	Month time.Month
	Count int
}

type ArchiveYear struct {
	Year   int
	Months []ArchiveMonth
}

// Counts dates per month in UTC. Years come out ascending, and so do the
// months within each year. Months with nothing published are left out.
func AggregateByMonth(dates []time.Time) []ArchiveYear {
	counts := make(map[int]map[time.Month]int)
	for _, d := range dates {
		d = d.UTC()
		if counts[d.Year()] == nil {
			counts[d.Year()] = make(map[time.Month]int)
		}
		counts[d.Year()][d.Month()]++
	}

	years := make([]ArchiveYear, 0, len(counts))
	for year, months := range counts {
		ay := ArchiveYear{Year: year}
		for month, count := range months {
			ay.Months = append(ay.Months, ArchiveMonth{Month: month, Count: count})
		}
		sort.Slice(ay.Months, func(i, j int) bool {
			return ay.Months[i].Month < ay.Months[j].Month
		})
		years = append(years, ay)
	}
	sort.Slice(years, func(i, j int) bool {
		return years[i].Year < years[j].Year
	})
	return years
}

// The monthly archive over everything published at time now.
func PublishedPerMonth(ctx context.Context, conn db.ConnOrTx, now time.Time) ([]ArchiveYear, error) {
	var qb db.QueryBuilder
	qb.Add(`
		---- Fetch publication dates
		SELECT pub_date
		FROM blog_article
	`)
	addPublishedFilter(&qb, now)

	dates, err := db.QueryScalar[time.Time](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch publication dates")
	}
	return AggregateByMonth(dates), nil
}
