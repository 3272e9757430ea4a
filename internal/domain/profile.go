package domain

// UserProfile is the onboarding profile stored per LINE user. ProfileID is
// generated at creation (lineId + creation epoch) and is cosmetic; lineId is
// the only lookup key.
type UserProfile struct {
	LineID            string `json:"lineId"`
	ProfileID         string `json:"profileId"`
	BirthDate         string `json:"birthDate"`
	Gender            string `json:"gender"`
	Height            string `json:"height"`
	Weight            string `json:"weight"`
	TargetWeight      string `json:"targetWeight"`
	TargetPeriod      string `json:"targetPeriod"`
	Priority          string `json:"priority"`
	PastExperience    string `json:"pastExperience"`
	ExerciseFrequency string `json:"exerciseFrequency"`
	MealFrequency     string `json:"mealFrequency"`
	AlcoholFrequency  string `json:"alcoholFrequency"`
	Allergies         string `json:"allergies"`
	Restrictions      string `json:"restrictions"`
	Illness           string `json:"illness"`
	Motivation        string `json:"motivation"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}
