package doc

import "time"

var testTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func testSongItem() Item {
	return Item{
		ID:                   "0192f3a4-0000-7000-8000-000000000001",
		Type:                 TypeSong,
		Version:              1,
		HistoryHeadID:        "0192f3a4-0000-7000-8000-0000000000c1",
		CreatedAt:            testTime,
		UpdatedAt:            testTime,
		Author:               "system",
		OriginDeviceID:       "unknown",
		LastModifiedDeviceID: "unknown",
		Payload: &Song{
			Title:  "Amazing Grace",
			Artist: "John Newton",
			Parts: []SongPart{
				{Label: "Verse 1", Lines: []string{"Amazing grace how sweet the sound", "That saved a wretch like me"}},
			},
		},
	}
}
