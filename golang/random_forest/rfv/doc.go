// Package rfv instruments random forest training with a chain of visitors.
//
// The trainer builds one chain from the caller's visitors and calls BeforeTraining
// on it. Every tree then gets its own fork of the chain, which owns a clone of each
// visitor, so trees can be grown concurrently without sharing mutable state:
//
//	chain, err := rfv.Build(oob, importance, stats)
//	err = chain.BeforeTraining()
//	fork, err := chain.Fork()            // once per tree, in tree order
//	err = fork.BeforeTree(weights)
//	err = fork.AfterSplit(...)           // once per committed split
//	err = fork.AfterTree(treeView, features, labels, weights)
//	err = chain.AfterTraining(forks, forest, features, labels)
//
// AfterTraining hands every visitor of the original chain the list of its own
// per-tree clones, in tree order, so it can reduce them into a global statistic.
// A forest that was aborted must not be joined; its forks are simply dropped.
package rfv
