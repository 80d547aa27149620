package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const realtimeTablesSQL = `SELECT to_regclass('public.room_entries') IS NOT NULL,
	to_regclass('public.rooms') IS NOT NULL`

// installRealtime заново ставит функцию и триггеры NOTIFY. Вызывается при
// каждом старте: таблицы бэкенда могли появиться позже, канал мог смениться.
func installRealtime(ctx context.Context, db execQuerier, channel string) error {
	if _, err := db.Exec(ctx, notifySQL(channel)); err != nil {
		return fmt.Errorf("триггеры NOTIFY: %w", err)
	}

	var entries, rooms bool
	if err := db.QueryRow(ctx, realtimeTablesSQL).Scan(&entries, &rooms); err != nil {
		return fmt.Errorf("проверка таблиц бэкенда: %w", err)
	}

	logger := log.WithFields(log.Fields{"component": "realtime", "channel": channel})
	if !entries || !rooms {
		logger.WithFields(log.Fields{
			"room_entries": entries,
			"rooms":        rooms,
		}).Warn("Таблицы бэкенда не найдены, до перезапуска таблицы лидеров обновляются только по таймеру")
		return nil
	}
	logger.Info("Триггеры NOTIFY установлены")
	return nil
}

func notifySQL(channel string) string {
	return fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION notify_room_change() RETURNS trigger AS $$
		DECLARE
			rec record;
			room text;
		BEGIN
			IF TG_OP = 'DELETE' THEN rec := OLD; ELSE rec := NEW; END IF;
			IF TG_TABLE_NAME = 'rooms' THEN
				room := rec.id::text;
			ELSE
				room := rec.room_id::text;
			END IF;
			PERFORM pg_notify('%s', json_build_object(
				'table', TG_TABLE_NAME, 'op', TG_OP, 'room_id', room)::text);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql;

		DO $$
		BEGIN
			IF to_regclass('public.room_entries') IS NOT NULL THEN
				DROP TRIGGER IF EXISTS room_entries_notify ON room_entries;
				CREATE TRIGGER room_entries_notify
					AFTER INSERT OR UPDATE OR DELETE ON room_entries
					FOR EACH ROW EXECUTE FUNCTION notify_room_change();
			END IF;
			IF to_regclass('public.rooms') IS NOT NULL THEN
				DROP TRIGGER IF EXISTS rooms_notify ON rooms;
				CREATE TRIGGER rooms_notify
					AFTER UPDATE ON rooms
					FOR EACH ROW EXECUTE FUNCTION notify_room_change();
			END IF;
		END;
		$$;
	`, strings.ReplaceAll(channel, "'", "''"))
}
