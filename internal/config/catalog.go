package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Имена команд каталога
const (
	CommandExploit    = "exploit"
	CommandQuiz       = "quiz"
	CommandSpam       = "spam"
	CommandCryptoHack = "cryptohack"
	CommandBoost      = "boost"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Command — лимит и цена одной игровой команды.
// Limit == 0 означает, что команда квотой не ограничена.
type Command struct {
	Limit        int           `yaml:"limit"`
	Period       time.Duration `yaml:"period"`
	Price        int64         `yaml:"price"`         // цена за единицу
	PriceDivisor int64         `yaml:"price_divisor"` // цена = count / divisor
	MinCount     int           `yaml:"min_count"`
	MaxCount     int           `yaml:"max_count"`
}

// Limited сообщает, ограничена ли команда квотой.
func (c Command) Limited() bool { return c.Limit > 0 }

// Cost считает стоимость команды для count единиц.
func (c Command) Cost(count int) int64 {
	if c.PriceDivisor > 0 {
		return int64(count) / c.PriceDivisor
	}
	if count <= 0 {
		count = 1
	}
	return c.Price * int64(count)
}

// Catalog — все игровые команды.
type Catalog struct {
	Commands map[string]Command `yaml:"commands"`
}

// Command возвращает настройки команды; ok=false, если её нет в каталоге.
func (c *Catalog) Command(name string) (Command, bool) {
	cmd, ok := c.Commands[name]
	return cmd, ok
}

// Validate проверяет согласованность каталога.
func (c *Catalog) Validate() error {
	for _, name := range []string{CommandExploit, CommandQuiz, CommandSpam, CommandCryptoHack, CommandBoost} {
		if _, ok := c.Commands[name]; !ok {
			return fmt.Errorf("каталог: нет команды %q", name)
		}
	}
	for name, cmd := range c.Commands {
		if cmd.Limit < 0 {
			return fmt.Errorf("каталог: %s: limit < 0", name)
		}
		if cmd.Limited() && cmd.Period <= 0 {
			return fmt.Errorf("каталог: %s: у лимитированной команды нужен period", name)
		}
		if cmd.Price < 0 || cmd.PriceDivisor < 0 {
			return fmt.Errorf("каталог: %s: отрицательная цена", name)
		}
		if cmd.MaxCount > 0 && cmd.MinCount > cmd.MaxCount {
			return fmt.Errorf("каталог: %s: min_count > max_count", name)
		}
	}
	return nil
}

// LoadCatalog читает каталог из файла; пустой путь — встроенный каталог.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение каталога %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog разбирает YAML и валидирует результат.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("разбор каталога: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
