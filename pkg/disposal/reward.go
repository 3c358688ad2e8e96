package disposal

// Reward points for a single submission.
// This is deliberately coarse: it only looks at whether trash and bins were
// seen at all, not at the per-event scores.
func Reward(a *Assessment) (points int, summary string) {
	haveTrash := len(a.Trashes) != 0
	haveBin := len(a.Bins) != 0
	switch {
	case haveTrash && haveBin:
		return 1, "Trash and bin detected. +1 point!"
	case haveTrash:
		return -1, "Trash detected but no bin. -1 point."
	case haveBin:
		return 0, "Bin detected but no trash. 0 points."
	}
	return 0, "No trash or bin detected. 0 points."
}

type Achievement struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	PointThreshold int    `json:"pointThreshold"`
}

// Achievements, ordered by point threshold
var Achievements = []Achievement{
	{"beginner", "Eco Beginner", "Started your journey to save the planet", 0},
	{"contributor", "Green Contributor", "Making a difference with your contributions", 50},
	{"recycler", "Dedicated Recycler", "Consistently identifying and recycling waste", 100},
	{"eco_warrior", "Eco Warrior", "Fighting pollution one detection at a time", 200},
	{"earth_guardian", "Earth Guardian", "A true protector of our environment", 500},
	{"sustainability_champion", "Sustainability Champion", "Leading the way in environmental conservation", 1000},
	{"planet_savior", "Planet Savior", "Your efforts are making a global impact", 2000},
}

// AchievementFor returns the highest achievement unlocked by the given point total.
// Negative totals still get the first achievement.
func AchievementFor(points int) Achievement {
	best := Achievements[0]
	for _, a := range Achievements {
		if points >= a.PointThreshold {
			best = a
		}
	}
	return best
}

// NextAchievement returns the next achievement to unlock, and false if the last one has been reached
func NextAchievement(points int) (Achievement, bool) {
	for _, a := range Achievements {
		if points < a.PointThreshold {
			return a, true
		}
	}
	return Achievement{}, false
}
