// contract-lint validates verification contract documents before an
// administrator uploads them, and can preview the resolved base path for a
// sample slug.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/portalkids/portal-api/src/portal/contract"
	"github.com/portalkids/portal-api/src/portal/source"
)

var slugFlag = flag.String("slug", "", "Preview the base path resolved for this student slug")

func main() {
	log.SetFlags(0)
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("usage: contract-lint [-slug SLUG] CONTRACT.json...")
	}

	failed := false
	for _, path := range flag.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("%s: %v", path, err)
			failed = true
			continue
		}
		c, err := contract.Parse(raw)
		if err != nil {
			log.Printf("%s: %v", path, err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok (%s)\n", path, c.Kind)
		if *slugFlag != "" {
			fmt.Printf("  base path for %s: %s\n", *slugFlag,
				source.ResolveBasePath(c.Source.BasePath, *slugFlag))
		}
	}
	if failed {
		os.Exit(1)
	}
}
