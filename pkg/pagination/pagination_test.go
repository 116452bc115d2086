package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 50: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected buffered limit 11, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", out, in)
	}

	if c, err := ParseCursor("  "); err != nil || c != nil {
		t.Fatalf("blank cursor should parse to nil, got %v %v", c, err)
	}
	if _, err := ParseCursor("!!!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestTrim(t *testing.T) {
	rows := []int{1, 2, 3}
	cursorOf := func(v int) Cursor {
		return Cursor{CreatedAt: time.Unix(int64(v), 0).UTC()}
	}

	page, next := Trim(rows, 2, cursorOf)
	if len(page) != 2 || next == nil || next.CreatedAt.Unix() != 2 {
		t.Fatalf("unexpected page %v next %+v", page, next)
	}

	page, next = Trim(rows, 5, cursorOf)
	if len(page) != 3 || next != nil {
		t.Fatalf("expected last page, got %v next %+v", page, next)
	}
}

type keysetRow struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func TestKeysetWalksPagesNewestFirst(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:pagination_keyset?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&keysetRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := conn.Create(&keysetRow{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i) * time.Minute)}).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	var seen []time.Time
	var cursor *Cursor
	for pages := 0; pages < 5; pages++ {
		var rows []keysetRow
		if err := Keyset(conn.Model(&keysetRow{}), cursor, 2).Find(&rows).Error; err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		page, next := Trim(rows, 2, func(r keysetRow) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} })
		for _, r := range page {
			seen = append(seen, r.CreatedAt)
		}
		if next == nil {
			break
		}
		cursor = next
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 rows across pages, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if !seen[i].Before(seen[i-1]) {
			t.Fatalf("rows out of order at %d: %v", i, seen)
		}
	}
}
