package main

import (
	"fmt"
	"sort"

	"github.com/haormj/mmult/accelerated"
	"github.com/haormj/mmult/accelerated/cpu"
	"github.com/haormj/mmult/accelerated/simd"
)

type engineFactory func(workers int) accelerated.Engine

var engines = map[string]engineFactory{
	"cpu": func(int) accelerated.Engine {
		return &cpu.CPU{}
	},
	"simd": func(workers int) accelerated.Engine {
		return simd.New(workers)
	},
}

func engineNames() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func newEngine(name string, workers int) (accelerated.Engine, error) {
	factory, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q, want one of %v", name, engineNames())
	}

	return factory(workers), nil
}
