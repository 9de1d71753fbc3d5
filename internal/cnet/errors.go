package cnet

import "fmt"

func pointTooFewObserversError(id int) error {
	return fmt.Errorf("point %d observed in fewer than 2 cameras and is not a GCP", id)
}
