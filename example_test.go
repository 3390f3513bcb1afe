package flume_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/petrijr/flume"
)

// Example_pipeline demonstrates defining and running a two-process pipeline
// using the high-level ProcBuilder API.
func Example_pipeline() {
	ctx := context.Background()

	p := flume.NewPipeline()
	p.Source("word", "gopher")

	flume.NewProc("upper").
		Val("word", nil).
		OutVal("loud", nil).
		Native(func(ctx context.Context, scope *flume.TaskScope) error {
			scope.SetVar("loud", strings.ToUpper(scope.Lookup("word")))
			return nil
		}).
		Cache(flume.CacheOff).
		MustRegister(p)

	flume.NewProc("frame").
		Val("loud", nil).
		OutVal("framed", nil).
		Native(func(ctx context.Context, scope *flume.TaskScope) error {
			scope.SetVar("framed", ">> "+scope.Lookup("loud")+" <<")
			return nil
		}).
		Cache(flume.CacheOff).
		MustRegister(p)

	if err := p.Run(ctx); err != nil {
		log.Fatal(err)
	}

	framed, err := p.Channel("framed").Collect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(framed[0])
	// Output: >> GOPHER <<
}

// Example_repeater demonstrates crossing a repeater (each) channel against
// a regular value channel.
func Example_repeater() {
	ctx := context.Background()

	p := flume.NewPipeline()
	p.Source("base", 10)
	p.Source("offset", 1, 2, 3)

	flume.NewProc("add").
		Val("base", nil).
		Each("offset", nil).
		Share("sums", "", nil).
		Native(func(ctx context.Context, scope *flume.TaskScope) error {
			base, _ := scope.Var("base")
			offset, _ := scope.Var("offset")
			prev, _ := scope.Var("sums")
			scope.SetVar("sums", fmt.Sprintf("%v%d ", prev, base.(int)+offset.(int)))
			return nil
		}).
		Cache(flume.CacheOff).
		MustRegister(p)

	if err := p.Run(ctx); err != nil {
		log.Fatal(err)
	}

	sums, err := p.Channel("sums").Collect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(sums[0])
	// Output: 11 12 13
}
