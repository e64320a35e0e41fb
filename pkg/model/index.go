package model

import "sync"

// ImageIndex maps an image repository to the releases that deploy it.
type ImageIndex map[string][]*Release

type imageIndexMemo struct {
	mu    sync.Mutex
	index ImageIndex
}

// ImageIndex returns the image index of the config, calling build the first
// time. A failed build is not memoized.
func (c *Config) ImageIndex(build func(*Config) (ImageIndex, error)) (ImageIndex, error) {
	c.imageIndex.mu.Lock()
	defer c.imageIndex.mu.Unlock()
	if c.imageIndex.index != nil {
		return c.imageIndex.index, nil
	}
	index, err := build(c)
	if err != nil {
		return nil, err
	}
	if index == nil {
		index = ImageIndex{}
	}
	c.imageIndex.index = index
	return index, nil
}
