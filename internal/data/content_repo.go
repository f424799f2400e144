package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/devLink-Developer/chatbot-camping/internal/data/pgxutil"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/navigate"
)

// ContentRepo provides read access to the menu tree, leaf responses, and
// configurable system texts.
type ContentRepo struct {
	DB *sql.DB
}

// NewContentRepo creates a ContentRepo.
func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{DB: db}
}

// GetMenu retrieves an active menu with its active options in display order.
func (r *ContentRepo) GetMenu(ctx context.Context, id string) (*model.Menu, error) {
	var menu model.Menu
	var header, footer sql.NullString
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, title, header, footer, active
		FROM menus WHERE id = $1 AND active
	`, id).Scan(&menu.ID, &menu.Title, &header, &footer, &menu.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMenuNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get menu: %w", err)
	}
	menu.Header = nullString(header)
	menu.Footer = nullString(footer)

	opts, err := r.menuOptions(ctx, id)
	if err != nil {
		return nil, err
	}
	menu.Options = opts
	return &menu, nil
}

func (r *ContentRepo) menuOptions(ctx context.Context, menuID string) ([]model.MenuOption, error) {
	var options []model.MenuOption
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT menu_id, key, label, target_menu_id, target_response_id, position, active
			FROM menu_options
			WHERE menu_id = $1 AND active
			ORDER BY position, key
		`, menuID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		opts, cerr := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MenuOption, error) {
			var o model.MenuOption
			var targetMenu, targetResponse sql.NullString
			if serr := row.Scan(&o.MenuID, &o.Key, &o.Label, &targetMenu,
				&targetResponse, &o.Position, &o.Active); serr != nil {
				return o, serr
			}
			o.TargetMenuID = nullString(targetMenu)
			o.TargetResponseID = nullString(targetResponse)
			return o, nil
		})
		if cerr != nil {
			return cerr
		}
		options = opts
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get menu options: %w", err)
	}
	return options, nil
}

// ResolveOption implements navigate.OptionLookup against the content tables.
func (r *ContentRepo) ResolveOption(ctx context.Context, menuID, key string) (*navigate.OptionTarget, error) {
	var targetMenu, targetResponse sql.NullString
	err := r.DB.QueryRowContext(ctx, `
		SELECT target_menu_id, target_response_id
		FROM menu_options
		WHERE menu_id = $1 AND key = $2 AND active
	`, menuID, key).Scan(&targetMenu, &targetResponse)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve menu option: %w", err)
	}
	target := &navigate.OptionTarget{}
	if targetMenu.Valid {
		target.MenuID = targetMenu.String
	}
	if targetResponse.Valid {
		target.ResponseID = targetResponse.String
	}
	return target, nil
}

// GetResponse retrieves an active leaf response.
func (r *ContentRepo) GetResponse(ctx context.Context, id string) (*model.Response, error) {
	var resp model.Response
	var category, nextSteps sql.NullString
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, category, body, next_steps, active
		FROM responses WHERE id = $1 AND active
	`, id).Scan(&resp.ID, &category, &resp.Body, &nextSteps, &resp.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResponseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	resp.Category = nullString(category)
	resp.NextSteps = nullString(nextSteps)
	return &resp, nil
}

// GetBotMessage retrieves one configurable system text by name. Missing names
// return an empty string so callers can fall back to a built-in default.
func (r *ContentRepo) GetBotMessage(ctx context.Context, name string) (string, error) {
	var body string
	err := r.DB.QueryRowContext(ctx, `
		SELECT body FROM bot_messages WHERE name = $1 AND active
	`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get bot message: %w", err)
	}
	return body, nil
}
