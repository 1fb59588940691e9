package domain

import "time"

// Scan представляет одно сканирование QR-кода (переход по короткой ссылке).
// Записи только добавляются и читаются в порядке Timestamp, при равенстве в порядке вставки.
type Scan struct {
	ID            int64     `gorm:"primaryKey;column:id" json:"-"`
	LinkSlug      string    `gorm:"column:link_slug;size:64;not null;index" json:"-"`
	ClientAddress string    `gorm:"column:client_address;size:64" json:"clientAddress"`
	UserAgent     string    `gorm:"column:user_agent;type:text" json:"userAgent"`
	Referer       string    `gorm:"column:referer;size:500" json:"referer,omitempty"`
	DeviceType    string    `gorm:"column:device_type;size:16" json:"deviceType,omitempty"` // 'desktop', 'mobile', 'tablet', 'bot'
	Browser       string    `gorm:"column:browser;size:50" json:"browser,omitempty"`
	OS            string    `gorm:"column:os;size:50" json:"os,omitempty"`
	Timestamp     time.Time `gorm:"column:scanned_at;not null;index" json:"timestamp"`

	// Link нужен только для внешнего ключа: сканирования уходят вместе со ссылкой
	Link *Link `gorm:"foreignKey:LinkSlug;references:Slug;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TableName возвращает название таблицы для GORM
func (Scan) TableName() string {
	return "scans"
}

// GetDeviceType возвращает тип устройства или "unknown"
func (s *Scan) GetDeviceType() string {
	if s.DeviceType != "" {
		return s.DeviceType
	}
	return "unknown"
}
