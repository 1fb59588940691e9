package domain

import "time"

// Значения оформления по умолчанию, применяются к пустым полям
const (
	DefaultBorderColor = "#000000"
	DefaultBgColor     = "#FFFFFF"
	DefaultFgColor     = "#000000"
)

// Link представляет сокращенную ссылку, на которую указывает QR-код.
// Slug неизменяем: переименование создает новую запись и удаляет старую.
type Link struct {
	Slug           string         `gorm:"primaryKey;column:slug;size:64" json:"slug"`
	DestinationURL string         `gorm:"column:destination_url;type:text;not null" json:"destinationUrl"`
	Owner          string         `gorm:"column:owner;size:128;index" json:"owner,omitempty"`
	Customizations Customizations `gorm:"embedded;embeddedPrefix:custom_" json:"customizations"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null" json:"updatedAt"`

	// Заполняются хранилищем при чтении, в таблице links не хранятся
	Scans     []Scan `gorm:"-" json:"scans"`
	ScanCount int64  `gorm:"-" json:"scanCount"`
}

// TableName возвращает название таблицы для GORM
func (Link) TableName() string {
	return "links"
}

// Customizations описывает оформление QR-кода
type Customizations struct {
	LogoURL     string `gorm:"column:logo_url;size:2048" json:"logoUrl" validate:"omitempty,http_url"`
	BorderColor string `gorm:"column:border_color;size:7" json:"borderColor" validate:"omitempty,qrcolor"`
	BgColor     string `gorm:"column:bg_color;size:7" json:"bgColor" validate:"omitempty,qrcolor"`
	FgColor     string `gorm:"column:fg_color;size:7" json:"fgColor" validate:"omitempty,qrcolor"`
}

// DefaultCustomizations возвращает оформление по умолчанию
func DefaultCustomizations() Customizations {
	return Customizations{
		BorderColor: DefaultBorderColor,
		BgColor:     DefaultBgColor,
		FgColor:     DefaultFgColor,
	}
}

// WithDefaults заполняет пустые цвета значениями по умолчанию
func (c Customizations) WithDefaults() Customizations {
	if c.BorderColor == "" {
		c.BorderColor = DefaultBorderColor
	}
	if c.BgColor == "" {
		c.BgColor = DefaultBgColor
	}
	if c.FgColor == "" {
		c.FgColor = DefaultFgColor
	}
	return c
}
