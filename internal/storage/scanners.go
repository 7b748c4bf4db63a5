package storage

import "github.com/ernie/craftbridge/internal/domain"

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDailyStats scans one daily_stats row joined with the player name
func scanDailyStats(r rowScanner) (*domain.DailyStats, error) {
	var ds domain.DailyStats
	err := r.Scan(
		&ds.GameID, &ds.GameName, &ds.Date, &ds.Kills, &ds.Deaths,
		&ds.DistanceTotal, &ds.DistanceDaily, &ds.PlaytimeMinutes, &ds.AchievementsCount,
		&ds.LastPosition.X, &ds.LastPosition.Y, &ds.LastPosition.Z,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}
