package repository

import (
	"database/sql"
	"time"

	"flashquest/internal/database"
	"flashquest/internal/models"
)

// DeckRepository handles deck and card database operations
type DeckRepository struct {
	db *database.DB
}

// NewDeckRepository creates a new deck repository
func NewDeckRepository(db *database.DB) *DeckRepository {
	return &DeckRepository{db: db}
}

// CreateDeck inserts a new deck
func (r *DeckRepository) CreateDeck(ownerID int64, name, description string) (*models.Deck, error) {
	query := `
		INSERT INTO decks (owner_id, name, description)
		VALUES (?, ?, ?)
	`

	id, err := r.db.ExecReturningID(query, ownerID, name, description)
	if err != nil {
		return nil, err
	}

	return r.GetDeckByID(id)
}

// GetDeckByID retrieves a deck with its card count
func (r *DeckRepository) GetDeckByID(deckID int64) (*models.Deck, error) {
	query := `
		SELECT d.id, d.owner_id, d.name, d.description,
		       (SELECT COUNT(*) FROM cards c WHERE c.deck_id = d.id),
		       d.created_at, d.updated_at
		FROM decks d
		WHERE d.id = ?
	`

	deck := &models.Deck{}
	err := r.db.QueryRow(query, deckID).Scan(
		&deck.ID,
		&deck.OwnerID,
		&deck.Name,
		&deck.Description,
		&deck.CardCount,
		&deck.CreatedAt,
		&deck.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return deck, nil
}

// ListDecks returns all decks
func (r *DeckRepository) ListDecks() ([]models.Deck, error) {
	query := `
		SELECT d.id, d.owner_id, d.name, d.description,
		       (SELECT COUNT(*) FROM cards c WHERE c.deck_id = d.id),
		       d.created_at, d.updated_at
		FROM decks d
		ORDER BY d.name
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decks []models.Deck
	for rows.Next() {
		var deck models.Deck
		err := rows.Scan(
			&deck.ID,
			&deck.OwnerID,
			&deck.Name,
			&deck.Description,
			&deck.CardCount,
			&deck.CreatedAt,
			&deck.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		decks = append(decks, deck)
	}
	return decks, rows.Err()
}

const cardSelect = `
	SELECT id, deck_id, front, back, hint, card_type, options,
	       correct_options, expected_answer, tags, created_at
	FROM cards
`

// GetDeckCards returns the cards in a deck in insertion order
func (r *DeckRepository) GetDeckCards(deckID int64) ([]models.Card, error) {
	rows, err := r.db.Query(cardSelect+" WHERE deck_id = ? ORDER BY id", deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// GetCardsByIDs returns the given cards, preserving the id order
func (r *DeckRepository) GetCardsByIDs(ids []int64) ([]models.Card, error) {
	byID := make(map[int64]models.Card, len(ids))
	for _, id := range ids {
		row := r.db.QueryRow(cardSelect+" WHERE id = ?", id)
		card, err := scanCardRow(row)
		if err == sql.ErrNoRows {
			// Card deleted since the order was saved; drop it
			continue
		}
		if err != nil {
			return nil, err
		}
		byID[card.ID] = card
	}

	cards := make([]models.Card, 0, len(byID))
	for _, id := range ids {
		if card, ok := byID[id]; ok {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

// GetCardByID retrieves a single card
func (r *DeckRepository) GetCardByID(cardID int64) (*models.Card, error) {
	card, err := scanCardRow(r.db.QueryRow(cardSelect+" WHERE id = ?", cardID))
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// AddCard inserts a card into a deck
func (r *DeckRepository) AddCard(card *models.Card) (*models.Card, error) {
	query := `
		INSERT INTO cards (deck_id, front, back, hint, card_type, options,
		                   correct_options, expected_answer, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id, err := r.db.ExecReturningID(query,
		card.DeckID,
		card.Front,
		card.Back,
		card.Hint,
		string(card.Type),
		encodeStrings(card.Options),
		encodeInts(card.CorrectOptions),
		card.ExpectedAnswer,
		encodeStrings(card.Tags),
	)
	if err != nil {
		return nil, err
	}

	inserted, err := scanCardRow(r.db.QueryRow(cardSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return &inserted, nil
}

// DeleteCard removes a card from a deck. Returns sql.ErrNoRows when the
// card does not belong to the deck.
func (r *DeckRepository) DeleteCard(deckID, cardID int64) error {
	result, err := r.db.Exec("DELETE FROM cards WHERE id = ? AND deck_id = ?", cardID, deckID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	_, err = r.db.Exec("UPDATE decks SET updated_at = ? WHERE id = ?", time.Now(), deckID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(scanner rowScanner) (models.Card, error) {
	var card models.Card
	var cardType, options, correctOptions, tags string
	err := scanner.Scan(
		&card.ID,
		&card.DeckID,
		&card.Front,
		&card.Back,
		&card.Hint,
		&cardType,
		&options,
		&correctOptions,
		&card.ExpectedAnswer,
		&tags,
		&card.CreatedAt,
	)
	if err != nil {
		return models.Card{}, err
	}
	card.Type = models.CardType(cardType)
	card.Options = decodeStrings(options)
	card.CorrectOptions = decodeInts(correctOptions)
	card.Tags = decodeStrings(tags)
	return card, nil
}

func scanCardRow(row *sql.Row) (models.Card, error) {
	return scanCard(row)
}
