package deck

import (
	_ "embed"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed cards.yaml
var defaultCards []byte

// Card is one creative prompt mixed into the brain request, in the spirit of
// a strategy card drawn before answering.
type Card struct {
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
}

func (c Card) String() string {
	if c.Title == "" {
		return c.Text
	}
	return c.Title + ": " + c.Text
}

type deckFile struct {
	Name  string `yaml:"name"`
	Cards []Card `yaml:"cards"`
}

// Deck is an immutable set of cards loaded once at startup.
type Deck struct {
	name  string
	cards []Card
}

// Default returns the deck embedded in the binary.
func Default() *Deck {
	d, err := parse(defaultCards)
	if err != nil {
		panic("deck: embedded cards invalid: " + err.Error())
	}
	return d
}

// Load reads a deck from a YAML file.
func Load(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Deck, error) {
	var f deckFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse deck: %w", err)
	}
	cards := make([]Card, 0, len(f.Cards))
	for _, c := range f.Cards {
		c.Title = strings.TrimSpace(c.Title)
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		cards = append(cards, c)
	}
	if len(cards) == 0 {
		return nil, errors.New("deck has no cards")
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "default"
	}
	return &Deck{name: name, cards: cards}, nil
}

func (d *Deck) Name() string {
	return d.name
}

func (d *Deck) Len() int {
	return len(d.cards)
}

// Draw picks a card at random.
func (d *Deck) Draw() Card {
	return d.cards[rand.Intn(len(d.cards))]
}

// DrawFor picks the card deterministically from key, so retries of the same
// mention keep working with the same prompt.
func (d *Deck) DrawFor(key string) Card {
	if key == "" {
		return d.Draw()
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return d.cards[int(h.Sum32())%len(d.cards)]
}
