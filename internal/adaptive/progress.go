package adaptive

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Level is the learner's overall tier.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

const (
	intermediateFrom = 1000
	advancedFrom     = 1250
	attentionBelow   = 1200
	decliningBelow   = 1100
	listLimit        = 3

	allMasteredTopic = "All concepts mastered!"
)

// Progress is the aggregate view of one learner.
type Progress struct {
	OverallMastery     float64           `json:"overallMastery"`
	AverageRating      int               `json:"averageRating"`
	Level              Level             `json:"level"`
	Streak             int               `json:"streak"`
	TotalQuestions     int               `json:"totalQuestions"`
	TodayQuestions     int               `json:"todayQuestions"`
	TotalConcepts      int               `json:"totalConcepts"`
	MasteredConcepts   int               `json:"masteredConcepts"`
	CurrentTopic       string            `json:"currentTopic"`
	Chapters           []ChapterProgress `json:"chapters"`
	Concepts           []ConceptProgress `json:"concepts"`
	RecommendedConcept *Recommendation   `json:"recommendedConcept"`
	NeedsAttention     []Attention       `json:"needsAttention"`
	RecentAchievements []Achievement     `json:"recentAchievements"`
}

// ChapterProgress is the rollup of one chapter.
type ChapterProgress struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	MasteredCount   int     `json:"masteredCount"`
	TotalConcepts   int     `json:"totalConcepts"`
	ProgressPercent float64 `json:"progressPercent"`
}

// ConceptProgress is one concept as shown on the progress page.
type ConceptProgress struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ChapterID     string     `json:"chapterId"`
	ChapterName   string     `json:"chapterName"`
	Status        Status     `json:"status"`
	Rating        int        `json:"rating"`
	Mastered      bool       `json:"mastered"`
	Prerequisites []string   `json:"prerequisites"`
	LastPracticed *time.Time `json:"lastPracticed"`
}

// Recommendation is the single concept suggested for practice.
type Recommendation struct {
	ConceptProgress
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
	MasteryGap  int    `json:"masteryGap"`
}

// Attention flags a ready concept with a low rating.
type Attention struct {
	ConceptID string `json:"conceptId"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	Status    string `json:"status"` // "declining" or "low"
}

// Achievement records a mastered concept.
type Achievement struct {
	Type      string    `json:"type"`
	ConceptID string    `json:"conceptId"`
	Concept   string    `json:"concept"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressInput is everything Aggregate reads.
type ProgressInput struct {
	Assessed  []Assessment
	Stats     AnswerStats
	Now       time.Time
	Threshold int
	// DefaultRating is displayed for concepts the learner has no row for.
	DefaultRating int
}

// Aggregate builds the progress view. It does not mutate its input.
func Aggregate(in ProgressInput) Progress {
	p := Progress{
		TotalConcepts:      len(in.Assessed),
		TotalQuestions:     in.Stats.Total,
		TodayQuestions:     in.Stats.Today,
		Streak:             Streak(in.Stats.Days, in.Now),
		Chapters:           []ChapterProgress{},
		Concepts:           make([]ConceptProgress, 0, len(in.Assessed)),
		NeedsAttention:     []Attention{},
		RecentAchievements: []Achievement{},
	}

	chapterIdx := make(map[string]int)
	ratingSum := 0
	for _, a := range in.Assessed {
		cp := conceptProgress(a, in.DefaultRating)
		p.Concepts = append(p.Concepts, cp)
		ratingSum += cp.Rating

		i, ok := chapterIdx[cp.ChapterID]
		if !ok {
			i = len(p.Chapters)
			chapterIdx[cp.ChapterID] = i
			p.Chapters = append(p.Chapters, ChapterProgress{ID: cp.ChapterID, Name: cp.ChapterName})
		}
		p.Chapters[i].TotalConcepts++
		if cp.Mastered {
			p.Chapters[i].MasteredCount++
			p.MasteredConcepts++
		}
	}

	for i := range p.Chapters {
		p.Chapters[i].ProgressPercent = percent(p.Chapters[i].MasteredCount, p.Chapters[i].TotalConcepts)
	}

	p.AverageRating = in.DefaultRating
	if p.TotalConcepts > 0 {
		p.AverageRating = ratingSum / p.TotalConcepts
		p.OverallMastery = percent(p.MasteredConcepts, p.TotalConcepts)
	}
	p.Level = LevelFor(p.AverageRating)

	p.RecommendedConcept = recommend(p.Concepts, in.Threshold)
	switch {
	case p.RecommendedConcept != nil:
		p.CurrentTopic = p.RecommendedConcept.Name
	case p.MasteredConcepts == p.TotalConcepts:
		p.CurrentTopic = allMasteredTopic
	default:
		p.CurrentTopic = weakestUnmastered(p.Concepts).Name
	}

	for _, c := range p.Concepts {
		if len(p.NeedsAttention) == listLimit {
			break
		}
		if c.Status != StatusReady || c.Rating >= attentionBelow {
			continue
		}
		label := "low"
		if c.Rating < decliningBelow {
			label = "declining"
		}
		p.NeedsAttention = append(p.NeedsAttention, Attention{ConceptID: c.ID, Name: c.Name, Rating: c.Rating, Status: label})
	}

	p.RecentAchievements = achievements(p.Concepts)
	return p
}

// LevelFor maps an average rating to a tier.
func LevelFor(avg int) Level {
	switch {
	case avg < intermediateFrom:
		return LevelBeginner
	case avg < advancedFrom:
		return LevelIntermediate
	default:
		return LevelAdvanced
	}
}

// Streak counts consecutive UTC days with answers, ending today or, when
// nothing was answered yet today, yesterday.
func Streak(days []time.Time, now time.Time) int {
	seen := make(map[time.Time]bool, len(days))
	for _, d := range days {
		seen[utcDay(d)] = true
	}

	day := utcDay(now)
	if !seen[day] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for seen[day] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func conceptProgress(a Assessment, defaultRating int) ConceptProgress {
	cp := ConceptProgress{
		ID:            a.ID,
		Name:          a.Name,
		ChapterID:     a.Chapter.ID,
		ChapterName:   a.Chapter.Name,
		Status:        a.Status,
		Rating:        defaultRating,
		Mastered:      a.Status == StatusMastered,
		Prerequisites: a.Prerequisites,
	}
	if cp.Prerequisites == nil {
		cp.Prerequisites = []string{}
	}
	if a.Mastery != nil {
		cp.Rating = a.Mastery.Rating
		cp.LastPracticed = a.Mastery.UpdatedAt
	}
	return cp
}

// recommend returns the first ready concept with the lowest rating.
func recommend(concepts []ConceptProgress, threshold int) *Recommendation {
	var best *ConceptProgress
	for i := range concepts {
		c := &concepts[i]
		if c.Status != StatusReady {
			continue
		}
		if best == nil || c.Rating < best.Rating {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return &Recommendation{
		ConceptProgress: *best,
		Reason:          "weakest_ready",
		Explanation:     fmt.Sprintf("This is your weakest ready concept (%d rating). Focus here to unlock advanced topics!", best.Rating),
		MasteryGap:      threshold - best.Rating,
	}
}

// weakestUnmastered returns the first unmastered concept with the lowest
// rating. At least one concept must be unmastered.
func weakestUnmastered(concepts []ConceptProgress) ConceptProgress {
	var best *ConceptProgress
	for i := range concepts {
		c := &concepts[i]
		if c.Mastered {
			continue
		}
		if best == nil || c.Rating < best.Rating {
			best = c
		}
	}
	return *best
}

func achievements(concepts []ConceptProgress) []Achievement {
	var mastered []ConceptProgress
	for _, c := range concepts {
		if c.Mastered && c.LastPracticed != nil {
			mastered = append(mastered, c)
		}
	}
	sort.SliceStable(mastered, func(i, j int) bool {
		return mastered[i].LastPracticed.After(*mastered[j].LastPracticed)
	})
	if len(mastered) > listLimit {
		mastered = mastered[:listLimit]
	}

	out := make([]Achievement, 0, len(mastered))
	for _, c := range mastered {
		out = append(out, Achievement{Type: "mastery", ConceptID: c.ID, Concept: c.Name, Timestamp: *c.LastPracticed})
	}
	return out
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
