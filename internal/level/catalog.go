package level

import (
	"github.com/victornm/trivia/internal/domain"
)

// Catalog is the ordered chain of levels. Ids are contiguous from 1.
type Catalog []domain.Level

// DefaultCatalog returns the seven built-in levels.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID: 1, Name: "Beginner", Difficulty: domain.DifficultyEasy,
			RequiredScore: 60, RequiredQuizzes: 2, QuestionsPerQuiz: 5, TimePerQuestion: 45, PointsPerQuestion: 5,
			Badge: "🌱", Description: "Start your quiz journey with simple questions",
		},
		{
			ID: 2, Name: "Explorer", Difficulty: domain.DifficultyEasy,
			RequiredScore: 70, RequiredQuizzes: 3, QuestionsPerQuiz: 6, TimePerQuestion: 40, PointsPerQuestion: 6,
			Badge: "🔍", Description: "Build confidence with slightly harder questions",
		},
		{
			ID: 3, Name: "Apprentice", Difficulty: domain.DifficultyMedium,
			RequiredScore: 65, RequiredQuizzes: 2, QuestionsPerQuiz: 5, TimePerQuestion: 35, PointsPerQuestion: 10,
			Badge: "📚", Description: "Enter the world of moderate challenges",
		},
		{
			ID: 4, Name: "Scholar", Difficulty: domain.DifficultyMedium,
			RequiredScore: 75, RequiredQuizzes: 3, QuestionsPerQuiz: 7, TimePerQuestion: 30, PointsPerQuestion: 12,
			Badge: "🎓", Description: "Demonstrate your growing knowledge",
		},
		{
			ID: 5, Name: "Expert", Difficulty: domain.DifficultyHard,
			RequiredScore: 70, RequiredQuizzes: 2, QuestionsPerQuiz: 5, TimePerQuestion: 25, PointsPerQuestion: 15,
			Badge: "⭐", Description: "Face challenging questions head-on",
		},
		{
			ID: 6, Name: "Master", Difficulty: domain.DifficultyHard,
			RequiredScore: 80, RequiredQuizzes: 3, QuestionsPerQuiz: 8, TimePerQuestion: 20, PointsPerQuestion: 18,
			Badge: "🏆", Description: "Prove your mastery of knowledge",
		},
		{
			ID: 7, Name: "Grandmaster", Difficulty: domain.DifficultyHard,
			RequiredScore: 85, RequiredQuizzes: 5, QuestionsPerQuiz: 10, TimePerQuestion: 18, PointsPerQuestion: 20,
			Badge: "👑", Description: "The ultimate quiz challenge awaits",
		},
	}
}

func (c Catalog) Get(id int) (domain.Level, bool) {
	for _, l := range c {
		if l.ID == id {
			return l, true
		}
	}

	return domain.Level{}, false
}

// Next returns the successor of level id. The last level has none.
func (c Catalog) Next(id int) (domain.Level, bool) {
	return c.Get(id + 1)
}

func (c Catalog) IDs() []int {
	ids := make([]int, 0, len(c))
	for _, l := range c {
		ids = append(ids, l.ID)
	}

	return ids
}
