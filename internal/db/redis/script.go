package redis

import (
	"context"
	"sync"

	"github.com/redis/rueidis"

	"github.com/botgate-io/botgate/internal/db"
)

// scripts caches rueidis Lua handles by source so EVALSHA is reused
// across calls instead of re-sending the script body every time.
var scripts sync.Map // string -> *rueidis.Lua

func luaFor(script string) *rueidis.Lua {
	if l, ok := scripts.Load(script); ok {
		return l.(*rueidis.Lua)
	}
	l := rueidis.NewLuaScript(script)
	actual, _ := scripts.LoadOrStore(script, l)
	return actual.(*rueidis.Lua)
}

// EvalInts executes a Lua script returning an integer array reply.
func (s *Store) EvalInts(ctx context.Context, script string, keys, args []string) ([]int64, error) {
	res := luaFor(script).Exec(ctx, s.client, keys, args)
	vals, err := res.AsIntSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpEval, Err: err}
	}
	return vals, nil
}
