// Package nlog is the engine's leveled logger: Infoln/Infof/Warningf/
// Errorln on top of the standard library, deliberately not a third-party
// logging dependency.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package nlog

import (
	"fmt"
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

func Infoln(v ...interface{})           { std.Output(2, "INFO  "+fmt.Sprintln(v...)) }
func Infof(f string, v ...interface{})  { std.Output(2, "INFO  "+fmt.Sprintf(f, v...)) }
func Warningln(v ...interface{})        { std.Output(2, "WARN  "+fmt.Sprintln(v...)) }
func Warningf(f string, v ...interface{}) { std.Output(2, "WARN  "+fmt.Sprintf(f, v...)) }
func Errorln(v ...interface{})          { std.Output(2, "ERROR "+fmt.Sprintln(v...)) }
func Errorf(f string, v ...interface{}) { std.Output(2, "ERROR "+fmt.Sprintf(f, v...)) }
