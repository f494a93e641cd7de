package axlf

import "github.com/google/uuid"

// refreshUUID stamps a fresh random UUID into the header so every written
// image carries a distinct identity.
func (c *Container) refreshUUID() {
	id := uuid.New()
	copy(c.Header.ImageUUID[:], id[:])
	c.log.Debug("generated image UUID", "uuid", id.String())
}
