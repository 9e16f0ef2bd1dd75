package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ProgressKey returns the durable storage key holding a candidate's whole test progress
func (r *CacheKeyStruct) ProgressKey(candidateID string) string {
	return fmt.Sprintf("speaking:candidate:%s:progress", candidateID)
}

// SubmissionName returns the file base name used when a recording is submitted
func (r *CacheKeyStruct) SubmissionName(part, questionIndex int) string {
	return fmt.Sprintf("Part%d_Question%d", part, questionIndex+1)
}

var CacheKey = NewCacheKeyStruct()
