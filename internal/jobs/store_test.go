package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobportal/internal/database"
	"jobportal/internal/database/dbtest"
)

type recordingPublisher struct {
	published []database.Job
	err       error
}

func (p *recordingPublisher) PublishJobCreated(_ context.Context, job database.Job) error {
	p.published = append(p.published, job)
	return p.err
}

func salary(v float64) *float64 { return &v }

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func validJob(title string) NewJob {
	return NewJob{
		CompanyName: "Acme",
		Title:       title,
		Description: "Build things",
		Salary:      salary(1000),
		CreatedBy:   "boss@x.edu",
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s := NewStore(dbtest.New(t),
		WithClock(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))),
		WithPublisher(pub),
	)

	j1, err := s.Create(ctx, validJob("J1"))
	if err != nil {
		t.Fatalf("create J1: %v", err)
	}
	j2, err := s.Create(ctx, validJob("J2"))
	if err != nil {
		t.Fatalf("create J2: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != j2.ID || list[1].ID != j1.ID {
		t.Fatalf("order = %+v, want [J2, J1]", list)
	}
	if len(pub.published) != 2 || pub.published[0].Title != "J1" {
		t.Fatalf("published = %+v", pub.published)
	}
}

func TestStore_CreateTrimsAndAllowsZeroSalary(t *testing.T) {
	s := NewStore(dbtest.New(t))

	job, err := s.Create(context.Background(), NewJob{
		CompanyName: "  Acme ",
		Title:       " Intern ",
		Description: " Unpaid ",
		Salary:      salary(0),
		CreatedBy:   " boss@x.edu ",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.CompanyName != "Acme" || job.Title != "Intern" || job.CreatedBy != "boss@x.edu" || job.Salary != 0 {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestStore_CreateValidation(t *testing.T) {
	s := NewStore(dbtest.New(t))
	ctx := context.Background()

	missingSalary := validJob("x")
	missingSalary.Salary = nil
	blankTitle := validJob("   ")
	negative := validJob("x")
	negative.Salary = salary(-1)

	cases := []struct {
		name string
		in   NewJob
		want error
	}{
		{"missing salary", missingSalary, ErrMissingFields},
		{"blank title", blankTitle, ErrMissingFields},
		{"negative salary", negative, ErrInvalidSalary},
	}
	for _, tc := range cases {
		if _, err := s.Create(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("invalid jobs were stored: %+v", list)
	}
}

func TestStore_Get(t *testing.T) {
	s := NewStore(dbtest.New(t))
	ctx := context.Background()

	created, err := s.Create(ctx, validJob("Engineer"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Engineer" {
		t.Fatalf("title = %q", got.Title)
	}

	if _, err := s.Get(ctx, created.ID+100); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestStore_PublishFailureDoesNotFailCreate(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	s := NewStore(dbtest.New(t), WithPublisher(pub))

	if _, err := s.Create(context.Background(), validJob("x")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("publisher not called")
	}
}
