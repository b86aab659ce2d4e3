package models

// RewardReason identifies why XP was granted (or deducted)
type RewardReason string

const (
	// Milestones
	ReasonPartnerAdded      RewardReason = "partner_added"
	ReasonProfileCompleted  RewardReason = "profile_completed"
	ReasonStatusTalking     RewardReason = "status_talking"
	ReasonStatusDating      RewardReason = "status_dating"
	ReasonStatusExclusive   RewardReason = "status_exclusive"
	ReasonStatusEnded       RewardReason = "status_ended"
	ReasonFirstDateLogged   RewardReason = "first_date_logged"
	ReasonAnniversaryLogged RewardReason = "anniversary_logged"

	// Consistency
	ReasonTimelineEventAdded     RewardReason = "timeline_event_added"
	ReasonNoteAdded              RewardReason = "note_added"
	ReasonRatingUpdated          RewardReason = "rating_updated"
	ReasonDailyCheckin           RewardReason = "daily_checkin"
	ReasonWeeklyConsistencyBonus RewardReason = "weekly_consistency_bonus"

	// Performance (per-partner, capped monthly)
	ReasonLowSimpIndex          RewardReason = "low_simp_index"
	ReasonSimpIndexImprovement  RewardReason = "simp_index_improvement"
	ReasonHighIntimacy          RewardReason = "high_intimacy"
	ReasonIntimacyImprovement   RewardReason = "intimacy_improvement"
	ReasonHighSimpPenalty       RewardReason = "high_simp_penalty"
	ReasonPartnerNeglectPenalty RewardReason = "partner_neglect_penalty"

	// Social
	ReasonPeerValidation      RewardReason = "peer_validation"
	ReasonValidationSubmitted RewardReason = "validation_submitted"
	ReasonGroupJoined         RewardReason = "group_joined"
	ReasonDateConfirmed       RewardReason = "date_confirmed"
	ReasonDoubleDateLogged    RewardReason = "double_date_logged"
	ReasonWingmanAssist       RewardReason = "wingman_assist"

	// Red flags
	ReasonRedFlagLogged       RewardReason = "red_flag_logged"
	ReasonRedFlagResolved     RewardReason = "red_flag_resolved"
	ReasonSerialDatingPenalty RewardReason = "serial_dating_penalty"
	ReasonGhostingPenalty     RewardReason = "ghosting_penalty"

	// Achievements (amount carried by the unlock record, not the catalog)
	ReasonAchievementUnlocked RewardReason = "achievement_unlocked"
)

// RewardCategory groups reasons for reporting and metrics
type RewardCategory string

const (
	CategoryMilestone   RewardCategory = "milestone"
	CategoryConsistency RewardCategory = "consistency"
	CategorySocial      RewardCategory = "social"
	CategoryPerformance RewardCategory = "performance"
	CategoryRedFlag     RewardCategory = "red_flag"
	CategoryAchievement RewardCategory = "achievement"
)

// DedupeWindow bounds how often a reason may be granted per user
type DedupeWindow string

const (
	WindowNone          DedupeWindow = "none"
	WindowCalendarWeek  DedupeWindow = "calendar_week"
	WindowCalendarMonth DedupeWindow = "calendar_month"
)

type RewardDefinition struct {
	Amount   int
	Category RewardCategory
	Window   DedupeWindow
}

// RewardCatalog is the closed set of reasons the engine can emit.
// Amounts are tuned here at build time, never at runtime.
var RewardCatalog = map[RewardReason]RewardDefinition{
	ReasonPartnerAdded:      {Amount: 50, Category: CategoryMilestone, Window: WindowNone},
	ReasonProfileCompleted:  {Amount: 40, Category: CategoryMilestone, Window: WindowNone},
	ReasonStatusTalking:     {Amount: 25, Category: CategoryMilestone, Window: WindowNone},
	ReasonStatusDating:      {Amount: 100, Category: CategoryMilestone, Window: WindowNone},
	ReasonStatusExclusive:   {Amount: 250, Category: CategoryMilestone, Window: WindowNone},
	ReasonStatusEnded:       {Amount: 10, Category: CategoryMilestone, Window: WindowNone},
	ReasonFirstDateLogged:   {Amount: 75, Category: CategoryMilestone, Window: WindowNone},
	ReasonAnniversaryLogged: {Amount: 150, Category: CategoryMilestone, Window: WindowNone},

	ReasonTimelineEventAdded:     {Amount: 10, Category: CategoryConsistency, Window: WindowNone},
	ReasonNoteAdded:              {Amount: 5, Category: CategoryConsistency, Window: WindowNone},
	ReasonRatingUpdated:          {Amount: 5, Category: CategoryConsistency, Window: WindowNone},
	ReasonDailyCheckin:           {Amount: 15, Category: CategoryConsistency, Window: WindowNone},
	ReasonWeeklyConsistencyBonus: {Amount: 100, Category: CategoryConsistency, Window: WindowCalendarWeek},

	ReasonLowSimpIndex:          {Amount: 100, Category: CategoryPerformance, Window: WindowCalendarMonth},
	ReasonSimpIndexImprovement:  {Amount: 75, Category: CategoryPerformance, Window: WindowCalendarMonth},
	ReasonHighIntimacy:          {Amount: 100, Category: CategoryPerformance, Window: WindowCalendarMonth},
	ReasonIntimacyImprovement:   {Amount: 75, Category: CategoryPerformance, Window: WindowCalendarMonth},
	ReasonHighSimpPenalty:       {Amount: -50, Category: CategoryPerformance, Window: WindowCalendarMonth},
	ReasonPartnerNeglectPenalty: {Amount: -40, Category: CategoryPerformance, Window: WindowCalendarMonth},

	ReasonPeerValidation:      {Amount: 20, Category: CategorySocial, Window: WindowNone},
	ReasonValidationSubmitted: {Amount: 15, Category: CategorySocial, Window: WindowNone},
	ReasonGroupJoined:         {Amount: 50, Category: CategorySocial, Window: WindowNone},
	ReasonDateConfirmed:       {Amount: 150, Category: CategorySocial, Window: WindowNone},
	ReasonDoubleDateLogged:    {Amount: 125, Category: CategorySocial, Window: WindowNone},
	ReasonWingmanAssist:       {Amount: 100, Category: CategorySocial, Window: WindowNone},

	ReasonRedFlagLogged:       {Amount: -25, Category: CategoryRedFlag, Window: WindowNone},
	ReasonRedFlagResolved:     {Amount: 30, Category: CategoryRedFlag, Window: WindowNone},
	ReasonSerialDatingPenalty: {Amount: -75, Category: CategoryRedFlag, Window: WindowNone},
	ReasonGhostingPenalty:     {Amount: -60, Category: CategoryRedFlag, Window: WindowNone},

	ReasonAchievementUnlocked: {Amount: 0, Category: CategoryAchievement, Window: WindowNone},
}

// LookupReward returns the catalog entry for a reason. Every reason the
// rest of the system emits must have an entry; callers decide whether a
// miss is fatal (strict/dev) or a zero-amount warning (prod).
func LookupReward(reason RewardReason) (RewardDefinition, bool) {
	def, ok := RewardCatalog[reason]
	return def, ok
}
