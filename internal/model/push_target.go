package model

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// PushTarget groups every push subscription registered by one user.
type PushTarget struct {
	UserID        string           `gorm:"primaryKey;size:128" json:"user_id"`
	Subscriptions SubscriptionList `gorm:"type:text;not null" json:"subscriptions"`
}

// SubscriptionList is stored as a JSON array.
type SubscriptionList []PushSubscription
