// Package boot implements the first-stage load sequence of an IOb-SoC.
//
// The loader announces itself on the serial link until the host answers,
// waits for the host acknowledgement, optionally receives the second-stage
// firmware into the destination region and echoes it back, then tells the
// operator to restart the CPU.
//
// Every step blocks on the Transport and nothing times out. A host that
// never engages leaves the loader waiting forever.
//
// The loader never jumps into the loaded image. Run returns to the caller,
// which must trigger a reset.
package boot
