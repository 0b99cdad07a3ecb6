package model

import "time"

type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "DRAFT"
	ArticlePending   ArticleStatus = "PENDING"
	ArticlePublished ArticleStatus = "PUBLISHED"
	ArticleRejected  ArticleStatus = "REJECTED"
)

// DefaultCategorySlug receives draft articles created by a completed payment
// that did not reference an existing article.
const DefaultCategorySlug = "sin-categoria"

// Article carries only the fields the payment flow reads or writes.
type Article struct {
	ID           int64
	CreatedBy    string
	Status       ArticleStatus
	CategorySlug string
	CreatedAt    time.Time
}

// ArticlePromotion is one promotion held by an article. An article may hold
// several at once, each with its own expiry.
type ArticlePromotion struct {
	ID           int64
	ArticleID    int64
	PromoteType  PlanType
	ExpirationAt *time.Time
	Cancelled    bool
}

// ActiveAt reports whether the promotion occupies its slot at t.
func (p ArticlePromotion) ActiveAt(t time.Time) bool {
	if p.Cancelled {
		return false
	}
	return p.ExpirationAt == nil || p.ExpirationAt.After(t)
}

// ActivePlan is the client-facing projection of a promotion.
type ActivePlan struct {
	PlanType     PlanType   `json:"planType"`
	ExpirationAt *time.Time `json:"expirationAt,omitempty"`
	Cancelled    bool       `json:"cancelled"`
}

func (p ArticlePromotion) View() ActivePlan {
	return ActivePlan{PlanType: p.PromoteType, ExpirationAt: p.ExpirationAt, Cancelled: p.Cancelled}
}

// SlotAvailability describes remaining capacity for a plan scope.
type SlotAvailability struct {
	Available      bool    `json:"available"`
	UsedSlots      int     `json:"usedSlots"`
	RemainingSlots int     `json:"remainingSlots"`
	TotalSlots     int     `json:"totalSlots"`
	CategoryName   *string `json:"categoryName"`
	Price          float64 `json:"price"`
}

// NextExpiration extends from the later of now and the previous expiry.
func NextExpiration(now time.Time, previous *time.Time) time.Time {
	base := now
	if previous != nil && previous.After(now) {
		base = *previous
	}
	return base.AddDate(0, 0, PromotionDays)
}
