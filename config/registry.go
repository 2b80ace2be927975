package config

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tarnstore/tarn/key"
	"github.com/tarnstore/tarn/tools/labels"
	"github.com/tarnstore/tarn/tools/locker"
	"github.com/tarnstore/tarn/tools/size"
	"github.com/tarnstore/tarn/tools/usage"
)

// The tool registries below are this module's analogue of the reference
// implementation's find_subclass(base, name) over __subclasses__(): a
// name in config.yml picks a constructor by string lookup rather than by
// reflecting over a class hierarchy, since Go has no runtime subclass
// enumeration. Each registry is populated once at package init.

type lockerFactory func(args map[string]any) (locker.Locker, error)

var lockerRegistry = map[string]lockerFactory{
	"global_thread": func(args map[string]any) (locker.Locker, error) {
		timeout, err := durationArg(args, "timeout", 0)
		if err != nil {
			return nil, err
		}
		return locker.NewGlobalThreadLocker(timeout), nil
	},
	"redis": func(args map[string]any) (locker.Locker, error) {
		client, prefix, expire, err := redisArgs(args)
		if err != nil {
			return nil, err
		}
		return locker.NewRedisLocker(client, prefix, expire), nil
	},
}

func buildLocker(tc ToolConfig) (locker.Locker, error) {
	factory, ok := lockerRegistry[tc.Name]
	if !ok {
		return nil, fmt.Errorf("config: no locker named %q", tc.Name)
	}
	return factory(tc.Args)
}

type sizeFactory func(args map[string]any, root string) (size.Tracker, error)

var sizeRegistry = map[string]sizeFactory{
	"atomic": func(args map[string]any, root string) (size.Tracker, error) {
		return size.OpenAtomicSize(root + "/counter")
	},
}

func buildSize(tc ToolConfig, root string) (size.Tracker, error) {
	factory, ok := sizeRegistry[tc.Name]
	if !ok {
		return nil, fmt.Errorf("config: no size tracker named %q", tc.Name)
	}
	return factory(tc.Args, root)
}

type usageFactory func(args map[string]any, root string, levels key.Levels) (usage.Tracker, error)

var usageRegistry = map[string]usageFactory{
	"file": func(args map[string]any, root string, levels key.Levels) (usage.Tracker, error) {
		return usage.NewFile(root, levels), nil
	},
}

func buildUsage(tc ToolConfig, root string, levels key.Levels) (usage.Tracker, error) {
	factory, ok := usageRegistry[tc.Name]
	if !ok {
		return nil, fmt.Errorf("config: no usage tracker named %q", tc.Name)
	}
	return factory(tc.Args, root, levels)
}

type labelsFactory func(args map[string]any, root string, levels key.Levels) (labels.Storage, error)

var labelsRegistry = map[string]labelsFactory{
	"json": func(args map[string]any, root string, levels key.Levels) (labels.Storage, error) {
		return labels.NewJSON(root, levels), nil
	},
}

func buildLabels(tc ToolConfig, root string, levels key.Levels) (labels.Storage, error) {
	factory, ok := labelsRegistry[tc.Name]
	if !ok {
		return nil, fmt.Errorf("config: no label store named %q", tc.Name)
	}
	return factory(tc.Args, root, levels)
}

func durationArg(args map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second, nil
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("config: %q must be a number of seconds, got %T", key, v)
	}
}

func redisArgs(args map[string]any) (redis.Cmdable, string, time.Duration, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, "", 0, fmt.Errorf("config: redis tool requires a %q argument", "url")
	}

	prefix, _ := args["prefix"].(string)
	if prefix == "" {
		prefix = "tarn"
	}

	expire, err := durationArg(args, "expire", 60*time.Second)
	if err != nil {
		return nil, "", 0, err
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, "", 0, fmt.Errorf("config: parsing redis url: %w", err)
	}

	return redis.NewClient(opts), prefix, expire, nil
}
