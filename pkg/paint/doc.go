// Package paint defines the shared data model of a painting session: items
// placed on the canvas, the reversible tasks that create and mutate them,
// and the participants that author them.
//
// The types here are plain values. They carry no references to the managers
// that own them; a task names its item through an ItemKey and the operation
// log resolves it against its own item set.
package paint
