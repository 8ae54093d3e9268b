package peimage

import "log"

var (
	DefaultExitFn = func(err error) {
		log.Fatalln(err)
	}
)
