package memory

import (
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/robalyx/timeline/internal/timeline"
)

// Fixture is the JSON document accepted by LoadFixture.
type Fixture struct {
	Users    []User                 `json:"users"`
	Follows  []Follow               `json:"follows"`
	Comments []timeline.ContentItem `json:"comments"`
}

// ReadFixture decodes a fixture document.
func ReadFixture(r io.Reader) (*Fixture, error) {
	var fixture Fixture
	if err := sonic.ConfigDefault.NewDecoder(r).Decode(&fixture); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	return &fixture, nil
}

// ReadFixtureFile decodes the fixture document at path.
func ReadFixtureFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	return ReadFixture(f)
}

// LoadFixture decodes a fixture document into a new store.
func LoadFixture(r io.Reader, minFollowers int) (*Store, error) {
	fixture, err := ReadFixture(r)
	if err != nil {
		return nil, err
	}
	return fixture.Store(minFollowers), nil
}

// Store builds an in-memory store holding the fixture.
func (fixture *Fixture) Store(minFollowers int) *Store {
	store := NewStore(minFollowers)
	for _, user := range fixture.Users {
		store.PutUser(user)
	}
	for _, edge := range fixture.Follows {
		store.AddFollow(edge.Follower, edge.Followee)
	}
	store.PutContent(fixture.Comments...)

	return store
}

// LoadFixtureFile reads a fixture document from path into a new store.
func LoadFixtureFile(path string, minFollowers int) (*Store, error) {
	fixture, err := ReadFixtureFile(path)
	if err != nil {
		return nil, err
	}
	return fixture.Store(minFollowers), nil
}
